package main

import (
	"log"
)

func main() {
	log.Println("[Main] 补货通知服务启动中...")

	runner := NewApplicationRunner()
	runner.Run()

	log.Println("[Main] 补货通知服务已停止")
}
