// Package status доставляет итоги обработки events.
//
// Все типы реализуют aggregator.Sink. Multi рассылает отчёт нескольким
// получателям: журналу статусов (repo.StatusRepo), очереди (mq.Publisher),
// логу, метрикам и Recorder'у для HTTP API.
package status
