package cmd

import (
	"context"
	"fmt"
	"time"

	"cinethos/cache"
	"cinethos/logger"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试偏好缓存使用的Redis连接，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.RedisEnabled() {
			return fmt.Errorf("REDIS_HOST is not set")
		}
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				logger.Warn("关闭Redis连接时发生错误", logger.ErrorField(err))
			}
		}()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := cache.TestRedis(ctx); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
