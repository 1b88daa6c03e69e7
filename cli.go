package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-payment/i18n"
	"storefront-payment/models"
	"storefront-payment/paymentform"
	"storefront-payment/queue"
	"storefront-payment/services/auth"
	"storefront-payment/services/checkout"
	"storefront-payment/services/storefront"
	"storefront-payment/worker"
)

// newRelayCmd runs only the redis relay, for deployments that scale it apart
// from the API.
func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Forward queued payment submissions to the storefront",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signalContext()
			defer stop()

			client, err := queue.Connect(ctx, cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer client.Close()

			q := queue.NewQueue(client, cfg.Submit.QueueName, logger)
			relay := worker.NewWorker(q, checkout.NewHTTPForwarder(cfg.Storefront.BaseURL, cfg.Storefront.Timeout, logger), logger)
			relay.Start(ctx, cfg.Submit.WorkerConcurrency)

			<-ctx.Done()
			relay.Stop()
			return nil
		},
	}
	cmd.AddCommand(newRelayRetryCmd())
	return cmd
}

type jobRetrier interface {
	RetryJob(ctx context.Context, jobID string) error
}

func runRetry(ctx context.Context, out io.Writer, q jobRetrier, jobIDs []string) error {
	for _, id := range jobIDs {
		if err := q.RetryJob(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "requeued %s\n", id)
	}
	return nil
}

// newRelayRetryCmd moves parked submissions out of the failed list so the
// relay tries them again from a zero retry count.
func newRelayRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Requeue submissions whose retries were exhausted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := queue.Connect(cmd.Context(), cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer client.Close()

			q := queue.NewQueue(client, cfg.Submit.QueueName, logger)
			return runRetry(cmd.Context(), cmd.OutOrStdout(), q, args)
		},
	}
}

type checkOptions struct {
	method     string
	cardNumber string
	cardName   string
	expiry     string
	cvv        string
	lang       string
}

// runCheck formats and validates the fields like a submit would and reports
// each field. It returns false when the submit would be blocked.
func runCheck(out io.Writer, catalog *i18n.Catalog, opts checkOptions, now func() time.Time) (bool, error) {
	inputs := [4]*paymentform.TextInput{
		paymentform.NewTextInput(opts.cardNumber),
		paymentform.NewTextInput(opts.cardName),
		paymentform.NewTextInput(opts.expiry),
		paymentform.NewTextInput(opts.cvv),
	}
	form, err := paymentform.New(paymentform.Inputs{
		CardNumber: inputs[paymentform.CardNumber],
		CardName:   inputs[paymentform.CardName],
		Expiry:     inputs[paymentform.Expiry],
		CVV:        inputs[paymentform.CVV],
	},
		paymentform.WithClock(now),
		paymentform.WithMessages(catalog.Messages(opts.lang)),
		paymentform.WithMethod(paymentform.Method(opts.method)),
	)
	if err != nil {
		return false, err
	}

	for _, f := range paymentform.Fields {
		form.Input(f)
	}
	res := form.Submit()

	fmt.Fprintf(out, "payment_method: %s\n", form.Method())
	for _, f := range paymentform.Fields {
		st := form.State(f)
		line := fmt.Sprintf("%-12s %-9s %q", f, st.State, inputs[f].Value())
		if st.State == paymentform.Invalid {
			line += fmt.Sprintf("  %s (%s)", inputs[f].Message(), st.Reason)
		}
		fmt.Fprintln(out, line)
	}

	if !res.Allowed {
		fmt.Fprintf(out, "%s [focus: %s]\n", catalog.Lookup(opts.lang, "payment.submit.blocked"), res.Focus)
		return false, nil
	}
	fmt.Fprintln(out, "ok")
	return true, nil
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate payment form values offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := i18n.Load()
			if err != nil {
				return err
			}
			opts.lang = i18n.Negotiate(opts.lang, "", "", i18n.Spanish)

			ok, err := runCheck(cmd.OutOrStdout(), catalog, opts, time.Now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("payment form is invalid")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.method, "method", string(paymentform.MethodCard), "payment method")
	cmd.Flags().StringVar(&opts.cardNumber, "card-number", "", "card number")
	cmd.Flags().StringVar(&opts.cardName, "card-name", "", "name on card")
	cmd.Flags().StringVar(&opts.expiry, "expiry", "", "expiry date, MM/YY")
	cmd.Flags().StringVar(&opts.cvv, "cvv", "", "security code")
	cmd.Flags().StringVar(&opts.lang, "lang", i18n.Spanish, "message language (es, en)")
	return cmd
}

type widgetOptions struct {
	token string
	lat   float64
	lng   float64
	watch bool
}

func fetchAds(ctx context.Context, out io.Writer, client *storefront.Client) {
	if ads, err := client.Ads(ctx); err != nil {
		fmt.Fprintf(out, "ads:        error: %v\n", err)
	} else {
		fmt.Fprintf(out, "ads:        %s, %d products\n", ads.Company, len(ads.Products))
	}

	if count, err := client.CartCount(ctx); err != nil {
		fmt.Fprintf(out, "cart count: error: %v\n", err)
	} else {
		fmt.Fprintf(out, "cart count: %d\n", count)
	}
}

func fetchWeather(ctx context.Context, out io.Writer, client *storefront.Client, opts widgetOptions) {
	if report, err := client.Weather(ctx, opts.lat, opts.lng); err != nil {
		fmt.Fprintf(out, "weather:    error: %v\n", err)
	} else {
		fmt.Fprintf(out, "weather:    %s %.1f%s, %s\n",
			report.Location.City, report.Weather.Temperature, report.Weather.TemperatureUnit, report.Weather.Description)
	}
}

func fetchWidgets(ctx context.Context, out io.Writer, client *storefront.Client, opts widgetOptions) {
	fetchAds(ctx, out, client)
	fetchWeather(ctx, out, client, opts)
}

// watchStorefront refreshes ads and cart count every adsEvery and the weather
// every weatherEvery, as the payment page does, until ctx is done.
func watchStorefront(ctx context.Context, out io.Writer, client *storefront.Client, opts widgetOptions, adsEvery, weatherEvery time.Duration) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	locked := func(fn func(io.Writer)) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.RFC3339))
		fn(out)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		storefront.Refresh(ctx, adsEvery, func(ctx context.Context) {
			locked(func(w io.Writer) { fetchAds(ctx, w, client) })
		})
	}()
	go func() {
		defer wg.Done()
		storefront.Refresh(ctx, weatherEvery, func(ctx context.Context) {
			locked(func(w io.Writer) { fetchWeather(ctx, w, client, opts) })
		})
	}()
	wg.Wait()
}

func newWidgetsCmd() *cobra.Command {
	var opts widgetOptions

	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "Call the storefront endpoints the payment page depends on",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			client := storefront.NewClient(cfg.Storefront.BaseURL, cfg.Storefront.Timeout, logger)
			if opts.token != "" {
				client = client.WithToken(opts.token)
			}
			out := cmd.OutOrStdout()

			if !opts.watch {
				fetchWidgets(cmd.Context(), out, client, opts)
				return nil
			}

			ctx, stop := signalContext()
			defer stop()
			logger.Info("Watching storefront",
				zap.Duration("ads_interval", storefront.AdsRefreshInterval),
				zap.Duration("weather_interval", storefront.WeatherRefreshInterval))
			watchStorefront(ctx, out, client, opts, storefront.AdsRefreshInterval, storefront.WeatherRefreshInterval)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", "", "shopper access token")
	cmd.Flags().Float64Var(&opts.lat, "lat", 4.711, "latitude for the weather widget")
	cmd.Flags().Float64Var(&opts.lng, "lng", -74.0721, "longitude for the weather widget")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "refresh ads every 30s and weather every 30m until interrupted")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		shopper models.Shopper
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a shopper access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := jwtService.GenerateToken(shopper, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().IntVar(&shopper.UserID, "user-id", 1, "shopper id")
	cmd.Flags().StringVar(&shopper.Username, "username", "shopper", "shopper username")
	cmd.Flags().StringVar(&shopper.Email, "email", "", "shopper email")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.AccessTokenDuration, "token lifetime")
	return cmd
}
