package orders

import (
	"os"
	"testing"

	"mallpay/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console", "stderr"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
