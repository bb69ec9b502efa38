// Package dispatch — фоновый цикл Task Manager'а над durable очередями.
//
// # Цикл
//
// Dispatcher.Cycle выполняет три шага и никогда не возвращает ошибку:
//
//  1. submitJobs   — извлекает tasks из submit-очереди, готовит контейнер,
//     отправляет в Worker, кладёт строку в job-очередь. Ошибка подготовки
//     контейнера даёт update BUILD_FAIL, ошибка отправки — SUBMIT_FAIL.
//  2. updateJobs   — опрашивает Worker по каждому нефинальному job.
//     Ошибка опроса — временная (UNKNOWN только в логах), строка остаётся.
//     Отказ узла (BOOT_FAIL, NODE_FAIL, OUT_OF_MEMORY, PREEMPTED) лечится
//     пересабмитом без уведомления об отказе. FAILED/TIMEOUT/TIMELIMIT
//     ищут checkpoint-файл и, если нашли, просят restart через task_info.
//  3. flushUpdates — отправляет всю update-очередь одной пачкой в UpdateSink.
//     Очередь очищается только после успешной доставки (at-least-once).
//
// # Расписание
//
// Start запускает цикл через robfig/cron с SkipIfStillRunning:
// новый цикл не начинается, пока не закончился предыдущий.
// Первый цикл выполняется сразу при старте.
//
// # Отмена
//
// CancelWorkflow снимает все jobs workflow: до MaxCancelAttempts попыток
// Cancel на каждый, после чего job считается ZOMBIE и забывается.
package dispatch
