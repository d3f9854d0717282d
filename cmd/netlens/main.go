package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"netlens/internal/config"
	"netlens/internal/logger"
	api "netlens/pkg/api"
	"netlens/pkg/model"
)

// main 控制台入口：连接 DevTools、附加页面目标，
// 然后进入命令循环。所有行为都在 service 层，这里只做编排。
func main() {
	cfgPath := flag.String("config", "", "yaml 配置文件路径")
	target := flag.String("target", "", "DevTools 页面目标 id，为空时取第一个页面")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	l := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})

	svc, err := api.New(cfg, l)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init service:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := svc.Attach(ctx, model.TargetID(*target)); err != nil {
		fmt.Fprintln(os.Stderr, "attach:", err)
		os.Exit(1)
	}
	defer svc.Detach()

	fmt.Println("netlens attached. commands: logs | ask <question> | arm | disarm | delete <id> | clear | key <value> | quit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "quit", "exit":
			return
		case "logs":
			printLogs(svc)
		case "ask":
			if rest == "" {
				fmt.Println("usage: ask <question>")
				continue
			}
			answer, err := svc.Ask(ctx, svc.CurrentSessionID(), rest)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(answer)
		case "arm":
			if err := svc.SetArmed(true); err != nil {
				fmt.Println("error:", err)
			}
		case "disarm":
			if err := svc.SetArmed(false); err != nil {
				fmt.Println("error:", err)
			}
		case "delete":
			id, err := strconv.ParseUint(rest, 10, 64)
			if err != nil {
				fmt.Println("usage: delete <id>")
				continue
			}
			if err := svc.DeleteLog(uint(id)); err != nil {
				fmt.Println("error:", err)
			}
		case "clear":
			if err := svc.ClearAll(); err != nil {
				fmt.Println("error:", err)
			}
		case "key":
			if rest == "" {
				fmt.Println("usage: key <value>")
				continue
			}
			if err := svc.SetCredential(cfg.Provider.Name, rest); err != nil {
				fmt.Println("error:", err)
			}
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func printLogs(svc api.Service) {
	logs, err := svc.GetLogs(svc.CurrentSessionID())
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(logs) == 0 {
		fmt.Println("(no captured exchanges)")
		return
	}
	for _, ex := range logs {
		body := truncate(ex.ResponseBody, 120)
		fmt.Printf("#%d %s %s\n  %s\n", ex.ID, ex.Method, ex.URL, body)
	}
}

// truncate 按字符截断，不会把多字节字符切成半个
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
