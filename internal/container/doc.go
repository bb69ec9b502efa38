// Package container готовит окружение контейнера перед отправкой task.
//
// Resolver смотрит на DockerRequirement task: без него Resolve — no-op.
// Иначе гарантирует наличие архива образа <ArchiveDir>/<name>.tar.gz,
// запуская настроенную команду pull (или build для dockerFile).
// Повторный Resolve того же образа ничего не делает.
// Любая ошибка Resolve превращается в BUILD_FAIL на стороне dispatch.
package container
