package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-kratos/kratos/v2"

	"github.com/iWorld-y/claim_radar/pkg/config"
	"github.com/iWorld-y/claim_radar/pkg/engine"
	"github.com/iWorld-y/claim_radar/pkg/logger"
	"github.com/iWorld-y/claim_radar/pkg/search"
	"github.com/iWorld-y/claim_radar/pkg/server"
)

var (
	// Name 是服务的名称
	Name string = "claim_radar"
	// Version 是服务的版本号
	Version string

	flagConf      string
	flagServe     bool
	flagClaim     string
	flagStrategy  string
	flagBoth      bool
	flagNoDetect  bool
	flagInterpret bool
	flagJSON      bool
)

func init() {
	flag.StringVar(&flagConf, "config", "configs/config.yaml", "配置文件路径")
	flag.BoolVar(&flagServe, "serve", false, "以 HTTP 服务模式运行")
	flag.StringVar(&flagClaim, "claim", "", "待核查的断言（一次性核查模式）")
	flag.StringVar(&flagStrategy, "strategy", "", "搜索策略: parallel / sequential / intelligent")
	flag.BoolVar(&flagBoth, "require-both", false, "要求两个搜索提供商都成功")
	flag.BoolVar(&flagNoDetect, "no-hallucination", false, "跳过幻觉检测")
	flag.BoolVar(&flagInterpret, "interpret", false, "调用 LLM 解读核查结果")
	flag.BoolVar(&flagJSON, "json", false, "以 JSON 输出核查结果")
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(flagConf)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}
	if err = logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	logger.Log.Info("启动断言雷达...")

	ctx := context.Background()

	e, err := engine.NewEngine(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("引擎初始化失败: %v", err)
	}
	defer e.Close()

	switch {
	case flagServe:
		runServer(cfg, e)
	case flagClaim != "":
		runFactCheck(ctx, e)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runServer 以 HTTP 服务模式运行
func runServer(cfg *config.Config, e *engine.Engine) {
	httpSrv := server.NewHTTPServer(cfg.Server, e)

	app := kratos.New(
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Server(httpSrv),
	)

	logger.Log.Infof("HTTP 服务监听于 %s", cfg.Server.Addr)
	if err := app.Run(); err != nil {
		logger.Log.Fatalf("服务运行失败: %v", err)
	}
}

// runFactCheck 执行一次性核查并打印结果
func runFactCheck(ctx context.Context, e *engine.Engine) {
	opts := e.DefaultOptions()
	if flagStrategy != "" {
		opts.Strategy = search.Strategy(flagStrategy)
	}
	if flagBoth {
		opts.RequireBoth = true
	}
	if flagNoDetect {
		opts.EnableHallucinationDetection = false
	}

	result, err := e.CheckFact(ctx, flagClaim, opts)
	if err != nil {
		logger.Log.Fatalf("核查失败: %v", err)
	}

	if flagJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			logger.Log.Fatalf("结果序列化失败: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("断言: %s\n", result.Claim)
	fmt.Printf("结论: %s\n", result.Verdict)
	fmt.Printf("置信度: %.3f\n", result.Confidence)
	fmt.Printf("准确度: %.3f\n", result.AccuracyScore)
	fmt.Printf("是否可靠: %v\n", result.IsReliable())
	fmt.Printf("是否疑似幻觉: %v (置信度 %.3f)\n",
		result.HallucinationAnalysis.IsHallucination,
		result.HallucinationAnalysis.ConfidenceScore)
	fmt.Printf("耗时: %.2fs\n\n", result.ProcessingTime.Seconds())
	fmt.Println(result.EvidenceSummary)

	if flagInterpret {
		interp, err := e.Interpret(ctx, result)
		if err != nil {
			logger.Log.Warnf("核查结果解读失败: %v", err)
			return
		}
		if interp == nil {
			logger.Log.Warn("未配置 LLM，跳过解读")
			return
		}
		fmt.Printf("\n== %s ==\n\n%s\n\n%s\n", interp.Title, interp.Assessment, interp.Reasoning)
		for _, caveat := range interp.Caveats {
			fmt.Printf("- %s\n", caveat)
		}
		if interp.Advice != "" {
			fmt.Printf("\n建议: %s\n", interp.Advice)
		}
	}

	logger.Log.Info("✅ 核查完成")
}
