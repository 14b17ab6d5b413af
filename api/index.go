package handler

import (
	"log"
	"net/http"
	"sync"

	config "psychometrics-api/configs"
	"psychometrics-api/pkg/handlers"

	"github.com/gin-gonic/gin"
)

var (
	app  *gin.Engine
	once sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() *gin.Engine {
	once.Do(func() {
		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		log.Printf("🟢 [setupApp] Config loaded (environment=%s)", cfg.Environment)

		app = handlers.NewRouter(cfg)
	})
	return app
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Backend-Version", handlers.Version)
	setupApp().ServeHTTP(w, r)
}
