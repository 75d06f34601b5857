// Package stages содержит executor'ы stages генерации.
//
// Три формы взаимодействия с generation gateway:
//   - GenerateExecutor — синхронные вызовы (script, voice, scene):
//     один HTTP-запрос, результат в ответе
//   - OperationExecutor — долгие операции (video, clip, lipsync):
//     запуск операции и polling с репортом прогресса
//   - FinalizeExecutor — финальные stages (composite, stitch):
//     долгая операция, затем перенос артефакта из gateway в
//     постоянное хранилище; возвращает output_url job'а
//
// Executor'ы не решают, повторять ли упавший stage — они возвращают
// классифицированную *domain.StageError, retry-политика у воркера.
package stages
