// Package sim — симуляция poller'а в одном процессе.
//
// Source генерирует events вместо upstream-журнала, Run собирает
// сервис поверх него и крутит его заданное время. Используется
// командой poller-cli sim и режимом EVENT_SOURCE=sim.
package sim
