// Command shop is a terminal storefront: browse the menu, keep a cart on
// disk between runs and place orders against the ordering API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/kiwari-pos/ordering/internal/cart"
	"github.com/kiwari-pos/ordering/internal/config"
	"github.com/kiwari-pos/ordering/internal/notify"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: shop <command> [flags]

commands:
  menu [-category C]            list available foods
  add -food ID [-qty N] [-note TEXT]
  remove LINE_ID
  qty LINE_ID N
  cart                          show the cart and the price preview
  clear
  checkout [flags]              place the order (see shop checkout -h)
  open-notification [PAYLOAD]   resolve a tapped notification (reads stdin without PAYLOAD)

environment:
  SHOP_API      API base URL (default http://localhost:8081)
  SHOP_TOKEN    access token; checkout runs as a guest without it
  SHOP_CART     cart database path (default ~/.kiwari-cart.db)
  SHOP_PROFILE  cart profile name (default "default")
`

// shop carries what the subcommands share.
type shop struct {
	api     *apiClient
	policy  pricing.Policy
	out     io.Writer
	in      io.Reader
	storage cart.Storage
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	if err := realMain(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "shop:", err)
		os.Exit(1)
	}
}

func realMain(args []string) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	policy, err := cfg.Pricing()
	if err != nil {
		return err
	}

	storage, err := cart.OpenBolt(cartPath(), os.Getenv("SHOP_PROFILE"))
	if err != nil {
		return err
	}
	defer storage.Close()

	s := &shop{
		api:     newAPIClient(envOr("SHOP_API", "http://localhost:8081"), os.Getenv("SHOP_TOKEN")),
		policy:  policy,
		out:     os.Stdout,
		in:      os.Stdin,
		storage: storage,
	}
	return s.run(context.Background(), args)
}

func (s *shop) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(s.out, usage)
		return flag.ErrHelp
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "menu":
		return s.menu(ctx, args)
	case "add":
		return s.add(ctx, args)
	case "remove":
		return s.remove(ctx, args)
	case "qty":
		return s.setQuantity(ctx, args)
	case "cart":
		return s.show(ctx)
	case "clear":
		return s.clear(ctx)
	case "checkout":
		return s.checkout(ctx, args)
	case "open-notification":
		return s.openNotification(args)
	case "help", "-h", "--help":
		fmt.Fprint(s.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *shop) menu(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("menu", flag.ContinueOnError)
	category := fs.String("category", "", "only show this category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	foods, err := s.api.menu(ctx, *category)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE")
	for _, f := range foods {
		fmt.Fprintf(tw, "%s\t%s\t%s\tRM%s\n", f.ID, f.Name, f.Category, f.Price.StringFixed(2))
	}
	return tw.Flush()
}

func (s *shop) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	foodID := fs.String("food", "", "food id (see shop menu)")
	qty := fs.Int("qty", 1, "quantity")
	note := fs.String("note", "", "special instructions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *foodID == "" {
		return errors.New("add: -food is required")
	}

	food, err := s.api.food(ctx, *foodID)
	if err != nil {
		return err
	}
	if !food.Available {
		return fmt.Errorf("%s is not available right now", food.Name)
	}

	c, err := cart.Open(ctx, s.storage)
	if err != nil {
		return err
	}
	line, err := c.Add(ctx, food, *qty, *note)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d x %s in cart (line %s)\n", line.Quantity, food.Name, line.ID)
	return nil
}

func (s *shop) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: shop remove LINE_ID")
	}
	c, err := cart.Open(ctx, s.storage)
	if err != nil {
		return err
	}
	return c.Remove(ctx, args[0])
}

func (s *shop) setQuantity(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: shop qty LINE_ID N")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	c, err := cart.Open(ctx, s.storage)
	if err != nil {
		return err
	}
	return c.SetQuantity(ctx, args[0], n)
}

func (s *shop) show(ctx context.Context) error {
	c, err := cart.Open(ctx, s.storage)
	if err != nil {
		return err
	}
	lines := c.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(s.out, "Your cart is empty.")
		return nil
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tFOOD\tQTY\tTOTAL\tNOTE")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\tRM%s\t%s\n", l.ID, l.Food.Name, l.Quantity, l.Total().StringFixed(2), l.SpecialInstructions)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printSummary(s.out, c.Count(), c.Preview(s.policy))
	return nil
}

func (s *shop) clear(ctx context.Context) error {
	c, err := cart.Open(ctx, s.storage)
	if err != nil {
		return err
	}
	return c.Clear(ctx)
}

func (s *shop) checkout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	var addr order.DeliveryAddress
	fs.StringVar(&addr.Street, "street", "", "street address")
	fs.StringVar(&addr.City, "city", "", "city")
	fs.StringVar(&addr.State, "state", "", "state")
	fs.StringVar(&addr.PostalCode, "postal", "", "postal code")
	fs.StringVar(&addr.Country, "country", "MY", "country")
	fs.StringVar(&addr.SpecialInstructions, "directions", "", "delivery directions")
	phone := fs.String("phone", "", "contact number")
	payment := fs.String("payment", string(order.PaymentCashOnDelivery), "cash_on_delivery or qr_code")
	notes := fs.String("notes", "", "order notes")
	guestName := fs.String("guest-name", "", "guest checkout: full name")
	guestEmail := fs.String("guest-email", "", "guest checkout: email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := cart.Open(ctx, s.storage)
	if err != nil {
		return err
	}
	if c.Count() == 0 {
		return errors.New("cart is empty")
	}

	req := checkoutRequest{
		DeliveryAddress: addr,
		ContactNumber:   *phone,
		PaymentMethod:   *payment,
		Notes:           *notes,
	}
	if s.api.token == "" {
		req.GuestInfo = &order.GuestInfo{FullName: *guestName, Email: *guestEmail, PhoneNumber: *phone}
	}
	for _, l := range c.Lines() {
		req.Items = append(req.Items, checkoutItem{
			FoodID:              l.Food.ID,
			Quantity:            l.Quantity,
			SpecialInstructions: l.SpecialInstructions,
		})
	}

	preview := c.Preview(s.policy)
	o, err := s.api.checkout(ctx, req, preview.Total)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Field == "expected_total" {
			return fmt.Errorf("menu prices changed since you added these items, review your cart: %w", err)
		}
		return err
	}

	// The order exists now; a failure to empty the cart must not hide that.
	if err := c.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("order placed but cart could not be cleared")
	}
	fmt.Fprintf(s.out, "Order %s placed: %s, total RM%s\n", notify.ShortRef(o.ID), o.Status, o.GrandTotal.StringFixed(2))
	if o.GuestToken != "" {
		fmt.Fprintf(s.out, "Guest token %s: send it as X-Guest-Token to track, pay or cancel this order.\n", o.GuestToken)
	}
	if o.PaymentMethod == order.PaymentQRCode && !o.PaymentConfirmed {
		fmt.Fprintln(s.out, "Scan the QR code at the counter to pay; staff confirm the order once payment arrives.")
	}
	return nil
}

func (s *shop) openNotification(args []string) error {
	var raw []byte
	if len(args) > 0 {
		raw = []byte(args[0])
	} else {
		b, err := io.ReadAll(s.in)
		if err != nil {
			return err
		}
		raw = b
	}
	target, ok := notify.OnUserAction(raw)
	if !ok {
		return errors.New("notification has nothing to open")
	}
	fmt.Fprintln(s.out, target.Path)
	return nil
}

func printSummary(w io.Writer, count int, sum pricing.Summary) {
	fmt.Fprintf(w, "\n%d item(s)\n", count)
	fmt.Fprintf(w, "Subtotal      RM%s\n", sum.Subtotal.StringFixed(2))
	fmt.Fprintf(w, "Delivery fee  RM%s\n", sum.DeliveryFee.StringFixed(2))
	fmt.Fprintf(w, "Tax           RM%s\n", sum.Tax.StringFixed(2))
	fmt.Fprintf(w, "Total         RM%s\n", sum.Total.StringFixed(2))
}

func cartPath() string {
	if p := os.Getenv("SHOP_CART"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kiwari-cart.db"
	}
	return filepath.Join(home, ".kiwari-cart.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
