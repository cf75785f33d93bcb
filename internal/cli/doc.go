// Package cli реализует инструмент командной строки poller'а.
//
// # Обзор
//
// Команды stats и event работают через HTTP API сервиса и не
// импортируют его внутренние пакеты. Команда sim запускает симуляцию
// poller'а прямо в процессе CLI.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует HTTP-запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	stats, err := client.Stats()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию, вердикты в цвете
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: poller event list --json | jq .
//
// ## Commands
//
//   - stats: состояние runner'а и сводка по вердиктам
//   - event: list, show, enqueue
//   - sim: симуляция в одном процессе
//
// Каждая группа создаётся через фабричную функцию (NewEventCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
