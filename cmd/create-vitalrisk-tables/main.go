package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/common/database"
	"wisefido-vitalrisk/internal/config"
	"wisefido-vitalrisk/internal/dataset"
	"wisefido-vitalrisk/internal/repository"
)

func main() {
	seed := flag.String("seed", "", "可选：导入训练样本的 .xlsx / .json 文件")
	sheet := flag.String("sheet", "", "xlsx 工作表名，默认第一个")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.EnsureSchema(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create tables: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ vital risk tables created successfully!")

	if *seed == "" {
		return
	}

	examples, err := dataset.LoadFile(*seed, *sheet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read seed dataset: %v\n", err)
		os.Exit(1)
	}
	repo := repository.NewTrainingExampleRepository(db, zap.NewNop())
	if err := repo.InsertBatch(ctx, examples, "seed:"+*seed); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to insert training examples: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ %d training examples imported from %s\n", len(examples), *seed)
}
