// Package orchestrator — Workflow Manager: действия над workflows
// и reconciler, применяющий пачки task updates к графу.
//
// Каждый workflow живёт в своём graph.Store под собственным мьютексом:
// действия и updates одного workflow сериализуются, разные workflows
// друг друга не блокируют. После каждой мутации снимок графа пишется
// в Snapshots, при старте незаархивированные workflows восстанавливаются.
//
// Поток task'а:
//
//	graph (READY) → Allocator → TaskDispatcher (TM) → updates → ApplyUpdates
package orchestrator
