package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable startup and shutdown strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	SystemMetricsInit  string
	EngineServiceInit  string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string
	AssetsConfigured   string

	// Ledger
	SnapshotBackend  string
	RedisUnavailable string
	LedgerLoaded     string
	LedgerLoadFailed string
	LedgerSaved      string
	LedgerSaveFailed string

	// Risk
	RiskControllerInit       string
	RiskControllerInitFailed string

	// Strategy
	StrategyInitFailed string
	AdvisorEnabled     string
	AdvisorDialFailed  string
	RuleAdvisorActive  string
	SchedulerStarted   string
	SchedulerDisabled  string

	// Market data
	MockFeedStarted    string
	BinanceFeedStarted string
	PriceStreamStarted string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting paper-trading service...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete.",
	SystemMetricsInit:  "System metrics initialized",
	EngineServiceInit:  "Engine service initialized",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",
	AssetsConfigured:   "Assets configured: %v",

	// Ledger
	SnapshotBackend:  "Ledger snapshots stored in %s",
	RedisUnavailable: "Redis unavailable (%v), falling back to sqlite snapshots",
	LedgerLoaded:     "Ledger loaded (%d assets, total capital %s)",
	LedgerLoadFailed: "Failed to load ledger snapshot: %v",
	LedgerSaved:      "Ledger snapshot saved.",
	LedgerSaveFailed: "Failed to save ledger snapshot: %v",

	// Risk
	RiskControllerInit:       "Risk controller initialized (stop-loss %s, cooldown %v)",
	RiskControllerInitFailed: "Risk controller init failed, using defaults: %v",

	// Strategy
	StrategyInitFailed: "Failed to build strategy engine: %v",
	AdvisorEnabled:     "Advisor service enabled at %s",
	AdvisorDialFailed:  "Advisor dial failed (%v), using rule-based advisor",
	RuleAdvisorActive:  "Using rule-based advisor and neutral sentiment",
	SchedulerStarted:   "Scheduler started (interval %v, %d workers)",
	SchedulerDisabled:  "Scheduler disabled; cycles run only on demand",

	// Market data
	MockFeedStarted:    "Mock price feed started",
	BinanceFeedStarted: "Binance price service started (%s)",
	PriceStreamStarted: "Binance price stream started (%s)",
}

// Traditional Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動模擬交易服務...",
	ConfigLoaded:       "設定已載入（Port：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "伺服器監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	ShutdownComplete:   "關閉完成。",
	SystemMetricsInit:  "系統指標已初始化",
	EngineServiceInit:  "引擎服務已初始化",
	ConfigLoadFailed:   "載入設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用遷移失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",
	AssetsConfigured:   "已設定資產：%v",

	// Ledger
	SnapshotBackend:  "帳本快照儲存於 %s",
	RedisUnavailable: "Redis 無法使用（%v），改用 sqlite 快照",
	LedgerLoaded:     "帳本已載入（%d 項資產，總資金 %s）",
	LedgerLoadFailed: "載入帳本快照失敗：%v",
	LedgerSaved:      "帳本快照已儲存。",
	LedgerSaveFailed: "儲存帳本快照失敗：%v",

	// Risk
	RiskControllerInit:       "風控已初始化（停損 %s，冷卻 %v）",
	RiskControllerInitFailed: "風控初始化失敗，使用預設值：%v",

	// Strategy
	StrategyInitFailed: "建立策略引擎失敗：%v",
	AdvisorEnabled:     "顧問服務已啟用：%s",
	AdvisorDialFailed:  "連線顧問服務失敗（%v），改用規則顧問",
	RuleAdvisorActive:  "使用規則顧問與中性情緒",
	SchedulerStarted:   "排程器已啟動（間隔 %v，%d 個工作者）",
	SchedulerDisabled:  "排程器已停用；僅手動執行週期",

	// Market data
	MockFeedStarted:    "模擬價格來源已啟動",
	BinanceFeedStarted: "Binance 價格服務已啟動（%s）",
	PriceStreamStarted: "Binance 價格串流已啟動（%s）",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
