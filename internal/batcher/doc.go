// Package batcher формирует batch sub-tasks из свободной ёмкости gate.
//
// Каждый event раскрывается в fan-out задач (assets × rules, плюс
// возможная завершающая задача), поэтому из источника запрашивается
// только доля ёмкости: по умолчанию capacity/10.
//
// Batch группирует задачи по event ID: агрегатор обрабатывает одну
// группу как единицу работы.
package batcher
