// mediactl — консольный клиент медиа-API: загрузка очереди файлов,
// просмотр и удаление файлов, статистика.
//
// Использование:
//
//	mediactl [флаги] upload <файл>...
//	mediactl [флаги] list [-type pictures|shorts|videos]
//	mediactl [флаги] delete <id>...
//	mediactl [флаги] delete -type shorts
//	mediactl [флаги] stats
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/gallery"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/mediaclient"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/uploader"
)

// errUsage — некорректные аргументы командной строки.
var errUsage = errors.New("некорректные аргументы")

func main() {
	// .env необязателен
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run разбирает аргументы и выполняет команду. Возвращает код выхода.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediactl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverURL := fs.String("server", envOr("MEDIACTL_SERVER", "http://localhost:5000"), "адрес медиа-API")
	token := fs.String("token", os.Getenv("MEDIACTL_TOKEN"), "Bearer-токен (при включённой аутентификации)")
	timeout := fs.Duration("timeout", mediaclient.DefaultTimeout, "таймаут одного запроса")
	verbose := fs.Bool("v", false, "подробный лог")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Использование: mediactl [флаги] upload|list|delete|stats [аргументы]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []mediaclient.Option{mediaclient.WithTimeout(*timeout), mediaclient.WithLogger(logger)}
	if *token != "" {
		opts = append(opts, mediaclient.WithToken(*token))
	}
	client, err := mediaclient.New(*serverURL, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Ошибка: %v\n", err)
		return 2
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "upload":
		err = runUpload(ctx, client, cmdArgs, stdout, stderr, logger)
	case "list":
		err = runList(ctx, client, cmdArgs, stdout, stderr, logger)
	case "delete":
		err = runDelete(ctx, client, cmdArgs, stdout, stderr, logger)
	case "stats":
		err = runStats(ctx, client, stdout)
	default:
		fmt.Fprintf(stderr, "Неизвестная команда %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Ошибка: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

// runUpload ставит файлы в очередь и загружает их.
func runUpload(ctx context.Context, client *mediaclient.Client, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	concurrency := fs.Int("concurrency", 1, "число одновременных загрузок")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: не указаны файлы", errUsage)
	}

	files := make([]uploader.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		f, err := uploader.FromPath(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	agent := uploader.New(client, uploader.Options{
		Concurrency: *concurrency,
		OnChange: func(it uploader.Item) {
			logger.Debug("Статус загрузки", slog.String("name", it.Name), slog.String("status", string(it.Status)))
		},
	}, logger)

	agent.Enqueue(ctx, files...)
	var uploadErr error
	if len(files) == 1 {
		agent.Wait()
	} else {
		uploadErr = agent.UploadAll(ctx)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ФАЙЛ\tСТАТУС\tID\tКАТЕГОРИЯ")
	failed := 0
	for _, it := range agent.Items() {
		id, category := "-", "-"
		if it.Result != nil {
			id, category = it.Result.ID, string(it.Result.Type)
		}
		if it.Status == uploader.StatusError {
			failed++
			id = it.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Name, it.Status, id, category)
	}
	_ = tw.Flush()

	if failed > 0 {
		if uploadErr == nil {
			return fmt.Errorf("не загружено файлов: %d", failed)
		}
		return fmt.Errorf("не загружено файлов: %d: %w", failed, uploadErr)
	}
	return nil
}

// runList выводит файлы, новые первыми.
func runList(ctx context.Context, client *mediaclient.Client, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	category := fs.String("type", "", "категория: pictures, shorts, videos")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	c, err := parseCategory(*category)
	if err != nil {
		return err
	}

	g := gallery.New(client, logger)
	if err := g.Refresh(ctx); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tИМЯ\tКАТЕГОРИЯ\tРАЗМЕР\tДАТА")
	for _, mf := range g.Filter(c) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			mf.ID, mf.Name, mf.Type, model.FormatMegabytes(mf.Size), mf.Date.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// runDelete удаляет файлы по id или все файлы категории.
func runDelete(ctx context.Context, client *mediaclient.Client, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	category := fs.String("type", "", "удалить все файлы категории")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	c, err := parseCategory(*category)
	if err != nil {
		return err
	}
	if c == "" && fs.NArg() == 0 {
		return fmt.Errorf("%w: укажите id или -type", errUsage)
	}

	g := gallery.New(client, logger)
	if err := g.Refresh(ctx); err != nil {
		return err
	}

	if c != "" {
		for _, mf := range g.Filter(c) {
			g.Toggle(mf.ID)
		}
	}
	for _, id := range fs.Args() {
		if !g.Toggle(id) {
			fmt.Fprintf(stderr, "Файл %s не найден, пропущен\n", id)
		}
	}

	n, err := g.DeleteSelected(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Удалено файлов: %d\n", n)
	return nil
}

// runStats выводит статистику хранилища.
func runStats(ctx context.Context, client *mediaclient.Client, stdout io.Writer) error {
	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Файлов:\t%d\n", stats.TotalMedia)
	fmt.Fprintf(tw, "Объём:\t%s\n", stats.TotalSize)
	fmt.Fprintf(tw, "Публикаций:\t%d\n", stats.ActivePosts)
	fmt.Fprintf(tw, "Вовлечённость:\t%s\n", stats.Engagement)
	return tw.Flush()
}

func parseCategory(s string) (model.Category, error) {
	if s == "" {
		return "", nil
	}
	c := model.Category(s)
	if !model.ValidCategory(c) {
		return "", fmt.Errorf("%w: категория %q, ожидается pictures, shorts или videos", errUsage, s)
	}
	return c, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
