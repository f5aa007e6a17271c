package main

import (
	"github.com/SundayYogurt/clearance_service/config"
	"github.com/SundayYogurt/clearance_service/internal/api"
)

func main() {
	//load configuration
	cfg := config.LoadConfig()
	api.StartServer(cfg)
}
