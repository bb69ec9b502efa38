package engine

import (
	"github.com/shaiso/beeflow/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Task — task из bundle.
	Task *domain.Task

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// Name возвращает имя task узла.
func (n *Node) Name() string {
	return n.Task.Name
}

// DAG — направленный граф tasks workflow.
//
// Ребро B → A существует, если какой-то вход A имеет Source,
// равный ID выхода B.
type DAG struct {
	// Nodes — все узлы графа (имя task → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей (точки входа) в порядке tasks.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildDAG строит DAG из bundle.
// Возвращает ErrCyclicDependency, если граф содержит цикл.
func BuildDAG(b *domain.Bundle) (*DAG, error) {
	dag := &DAG{
		Nodes:     make(map[string]*Node, len(b.Tasks)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: узлы и индекс выходов
	nodes := make([]*Node, 0, len(b.Tasks))
	producers := make(map[string]*Node)
	for i := range b.Tasks {
		task := &b.Tasks[i]
		node := &Node{
			Task:       task,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
		dag.Nodes[task.Name] = node
		nodes = append(nodes, node)
		for _, out := range task.Outputs {
			producers[out.ID] = node
		}
	}

	// Второй проход: рёбра по совпадению source/output
	for _, node := range nodes {
		for _, in := range node.Task.Inputs {
			producer, ok := producers[in.Source]
			if !ok {
				continue
			}
			if producer == node {
				return nil, NewValidationError(node.Name(), "inputs",
					"input "+in.ID+" consumes own output "+in.Source, ErrSelfDependency)
			}
			dag.addEdge(producer, node)
		}
	}

	for _, node := range nodes {
		if node.InDegree == 0 {
			dag.RootNodes = append(dag.RootNodes, node)
		}
	}

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты не учитываются, чтобы InDegree не считался дважды.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep == from {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[*Node]int, len(d.Nodes))
	for _, node := range d.Nodes {
		inDegree[node] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// GetNode возвращает узел по имени task.
func (d *DAG) GetNode(name string) *Node {
	return d.Nodes[name]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}
