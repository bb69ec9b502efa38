// Package graph содержит хранилище графа зависимостей одного workflow.
//
// Store — единственный источник правды о структуре и статусах tasks.
// Рёбра не хранятся: task A зависит от task B, если какой-то вход A
// имеет Source, равный ID одного из выходов B. Поэтому порядок LoadTask
// не важен, а готовность пересчитывается при каждом изменении выходов.
//
// Все операции сериализуются одним мьютексом: ни один вызывающий
// не увидит наполовину применённый FinalizeTask.
package graph
