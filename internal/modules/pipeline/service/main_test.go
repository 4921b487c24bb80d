package service

import (
	"os"
	"testing"

	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(true); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
