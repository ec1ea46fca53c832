package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tvhook/api"
	"tvhook/config"
	"tvhook/notify"
	"tvhook/pkg/logger"
	"tvhook/trader"
)

// 默认写入配置的币种
var defaultCoins = []string{"btc", "eth", "bnb", "sol", "xrp", "ada", "doge", "sui"}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️ 未找到.env文件，使用系统环境变量")
	}

	logger.Init(getenv("LOG_DIR", "logs"), os.Getenv("DEBUG") == "true")
	defer logger.Sync()

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		log.Fatal("❌ 缺少 BINANCE_API_KEY / BINANCE_SECRET_KEY")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ 缺少 JWT_SECRET")
	}

	db, err := config.NewDatabase(getenv("DB_PATH", "data/tvhook.db"))
	if err != nil {
		log.Fatalf("❌ 初始化数据库失败: %v", err)
	}
	defer db.Close()
	if err := db.SeedDefaults(defaultCoins); err != nil {
		log.Fatalf("❌ 写入默认配置失败: %v", err)
	}

	// Telegram可选，未配置时不发通知
	var notifier trader.Notifier
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		tg, err := notify.NewTelegramNotifier(token, os.Getenv("TELEGRAM_CHAT_ID"))
		if err != nil {
			log.Printf("⚠️ Telegram初始化失败，通知已禁用: %v", err)
		} else {
			notifier = tg
		}
	}

	exchange := trader.NewFuturesTrader(apiKey, secretKey)
	executor := trader.NewExecutor(exchange, config.NewCoinResolver(db), db, notifier, db)
	if os.Getenv("USE_NOMINAL_BALANCE") == "true" {
		executor.SetNominalBalanceFallback(true)
	}

	monitor := trader.NewMonitor(exchange)
	monitor.Start()

	server := api.NewServer(executor, exchange, db, notifier, jwtSecret,
		getenv("ADMIN_USERNAME", "admin"), getenv("ADMIN_PASSWORD", "admin"))

	go func() {
		if err := server.Run(":" + getenv("PORT", "8080")); err != nil {
			log.Fatalf("❌ API服务退出: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("🛑 收到退出信号，正在停止...")
	monitor.Stop()
	log.Printf("👋 已退出")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
