// Package queue содержит durable очереди Task Manager'а на SQLite.
//
// Три таблицы:
//   - submit_queue — tasks, ожидающие отправки в batch-планировщик
//   - job_queue    — отправленные jobs и их последний известный статус
//   - update_queue — изменения статусов, ещё не доставленные в WFM
//
// Строки добавляются в хвост и удаляются по одной, порядок — по id.
// После рестарта процесса содержимое очередей — единственный источник
// правды о незавершённой работе.
package queue
