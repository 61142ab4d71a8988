package tracker

// State 行情连接状态机
//
//	Idle -> Connecting -> Subscribed -> Reconnecting -> Connecting ...
//	                                 \-> Failed (重试耗尽，等待下一次注册表变更)
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Event 状态迁移事件
type Event int

const (
	EventTopicsChanged Event = iota
	EventTopicsEmpty
	EventConnected
	EventConnLost
	EventRetryDue
	EventRetriesExhausted
	EventShutdown
)

func (e Event) String() string {
	switch e {
	case EventTopicsChanged:
		return "topics_changed"
	case EventTopicsEmpty:
		return "topics_empty"
	case EventConnected:
		return "connected"
	case EventConnLost:
		return "conn_lost"
	case EventRetryDue:
		return "retry_due"
	case EventRetriesExhausted:
		return "retries_exhausted"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventTopicsChanged: StateConnecting,
		EventTopicsEmpty:   StateIdle,
	},
	StateConnecting: {
		EventTopicsChanged:    StateConnecting,
		EventTopicsEmpty:      StateIdle,
		EventConnected:        StateSubscribed,
		EventConnLost:         StateReconnecting,
		EventRetriesExhausted: StateFailed,
	},
	StateSubscribed: {
		EventTopicsChanged:    StateConnecting,
		EventTopicsEmpty:      StateIdle,
		EventConnLost:         StateReconnecting,
		EventRetriesExhausted: StateFailed,
	},
	StateReconnecting: {
		EventTopicsChanged: StateConnecting,
		EventTopicsEmpty:   StateIdle,
		EventRetryDue:      StateConnecting,
	},
	StateFailed: {
		EventTopicsChanged: StateConnecting,
		EventTopicsEmpty:   StateIdle,
	},
}

// next 返回迁移后的状态；Shutdown 在任意状态下都回到 Idle
func next(s State, ev Event) (State, bool) {
	if ev == EventShutdown {
		return StateIdle, true
	}
	to, ok := transitions[s][ev]
	return to, ok
}
