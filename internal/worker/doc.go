// Package worker — адаптеры исполнения jobs (backend'ы batch-планировщиков).
//
// # Обзор
//
// Worker — коллаборатор Task Manager'а, который умеет три вещи:
//
//   - Submit — отправить task как job, получить job id и начальный статус
//   - Query  — узнать текущий статус job
//   - Cancel — попросить backend завершить job
//
// Backend выбирается один раз при старте процесса из закрытого набора
// (worker.New) и передаётся в dispatch.Dispatcher явно.
//
// # Статусы
//
// Каждый backend приводит свои статусы к словарю domain.TaskState через
// MapState. Неизвестные статусы становятся UNKNOWN, а не ошибкой.
//
// # Командная строка
//
// BuildCommand собирает argv из BaseCommand, позиционных входов
// (с префиксами и value_from выражениями) и, для перезапущенных tasks,
// параметров restart_parameters + checkpoint-файла.
//
//	w, err := worker.New(worker.Config{Backend: "local", Logger: logger})
//	jobID, state, err := w.Submit(ctx, task)
package worker
