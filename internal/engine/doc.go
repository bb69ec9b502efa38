// Package engine отвечает за понимание структуры workflow до загрузки в граф.
//
// Включает:
//   - parser.go   — чтение bundle (workflow + tasks) из YAML/JSON и нормализация
//   - validate.go — проверка имён, выходов и ссылок входов
//   - dag.go      — построение DAG по совпадению source/output и поиск циклов
//   - template.go — вычисление value_from выражений входов ({{ .Self }})
package engine
