// Package scheduler распределяет готовые tasks по ресурсам.
//
// Allocator — чистая функция назначения: получает READY tasks и возвращает
// Allocation. Политика — FCFS: tasks рассматриваются в порядке поступления,
// каждый получает первый ресурс с достаточным числом свободных ядер
// (coresMin из ResourceRequirement). Если свободных ядер нет, task
// назначается на первый ресурс, который в принципе может его вместить:
// очередь выстроит batch-планировщик.
// Tasks, которые не помещаются ни на один ресурс, попадают в Unscheduled.
//
//	alloc := scheduler.NewAllocator(scheduler.Config{
//	    Resources: []scheduler.Resource{{ID: "cluster", Cores: 64}},
//	    Logger:    logger,
//	})
//	result, err := alloc.Allocate(ctx, tasks)
package scheduler
