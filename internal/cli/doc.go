// Package cli реализует инструмент командной строки ClipForge.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с ClipForge API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для постановки jobs и наблюдения за их прогрессом.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для ClipForge API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	jobs, err := client.ListJobs(cli.ListJobsOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: clipforge job list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - job: submit, list, show, status, watch
//
// Каждая группа создаётся через фабричную функцию (NewJobCmd),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
