// Package service: состояние сервиса и HTTP-ручки дашборда — пробы
// живости, срезы по наблюдаемым символам, выгрузки отчётов и здоровье
// портфеля.
package service

import (
	"sync/atomic"
	"time"
)

// State — атомарные флаги и отметки времени, которые трогают стример
// котировок и планировщик сканов.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
	lastScanUnix atomic.Int64
}

// *State для fx.
func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time   { return unixOrZero(s.lastTickUnix.Load()) }

func (s *State) TouchScan(t time.Time) { s.lastScanUnix.Store(t.Unix()) }
func (s *State) LastScan() time.Time   { return unixOrZero(s.lastScanUnix.Load()) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func unixOrZero(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
