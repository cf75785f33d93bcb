// Package rules раскрывает event в задачи проверки правил.
//
// Cache хранит набор правил для каждого asset. Expander строит по одной
// RuleTask на пару (asset, rule) в порядке assets события и правил кэша.
// Действие задачи выбирается через Registry:
//   - HTTPAction — вызов удалённого сервиса проверки правил;
//   - SimAction — симуляция со случайной задержкой и ошибками.
package rules
