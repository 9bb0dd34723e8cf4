package automod

import (
	"github.com/ninjabot/ninjaguard/automod/countstore"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
)

type Engine = engine.Engine
type Config = engine.Config
type Options = engine.Options
type Decision = engine.Decision
type Remover = engine.Remover
type RemovalResult = engine.RemovalResult

type Platform = engine.Platform
type Reporter = engine.Reporter
type Warner = engine.Warner

type MessageEvent = event.MessageEvent
type MessageRef = event.MessageRef

var (
	NewEngine     = engine.NewEngine
	DefaultConfig = engine.DefaultConfig

	ErrEngineClosed = engine.ErrEngineClosed
	ErrInvalidEvent = engine.ErrInvalidEvent

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)
