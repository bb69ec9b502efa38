// Package mq — транспорт updates между Task Manager и Workflow Manager через RabbitMQ.
//
// Альтернатива HTTP-доставке: TM публикует содержимое update-очереди одним
// сообщением (Publisher.SendUpdates), WFM потребляет его (Consumer + UpdateHandler)
// и применяет пачку целиком. Подтверждение публикации означает доставку,
// поэтому TM очищает update-очередь только после успешного Publish.
//
// Файлы:
//   - connection.go — соединение с reconnect
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — конверт Message и публикация пачек
//   - consumer.go   — потребление с ручным ack, DLQ для отвергнутых сообщений
package mq
