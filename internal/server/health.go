package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cinemarwa/backend/internal/database"
)

var startedAt = time.Now()

// healthCheck reports process and database health plus basic host metrics.
func healthCheck(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"

	db := database.GetDB()
	if db == nil {
		dbStatus = "uninitialized"
		status = http.StatusServiceUnavailable
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":   "ok",
		"database": dbStatus,
		"uptime":   time.Since(startedAt).Round(time.Second).String(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		body["memoryUsedPercent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		body["cpuPercent"] = percents[0]
	}

	c.JSON(status, body)
}
