package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/mockapi"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/result"
	"github.com/example/ec-storefront/internal/session"
	"github.com/example/ec-storefront/internal/storefront"
	"github.com/example/ec-storefront/internal/wishlist"
)

const usage = `usage: storefront <command> [flags]

commands:
  mock      serve the in-memory shop backend
  demo      run a full shopping session against an in-memory backend
  products  list products
  login     log in and persist the session
  logout    end the session
  whoami    show the current session
  cart      show the cart
  add       add a product to the cart
  remove    remove a product from the cart
  wishlist  show the wishlist
  checkout  place an order from the cart`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "mock":
		err = runMock(args)
	case "demo":
		err = runDemo()
	default:
		err = runCommand(cmd, args)
	}
	if err != nil {
		log.Fatalf("[Storefront] %s: %v", cmd, err)
	}
}

// ============================================
// Mock backend
// ============================================

func runMock(args []string) error {
	fs := flag.NewFlagSet("mock", flag.ExitOnError)
	addr := fs.String("addr", ":5000", "listen address")
	_ = fs.Parse(args)

	srv := mockapi.New()
	ids, err := srv.Seed()
	if err != nil {
		return err
	}

	server := &http.Server{Addr: *addr, Handler: srv.Handler()}
	go func() {
		log.Println("[Mock] ========================================")
		log.Printf("[Mock] Shop backend started on %s", *addr)
		log.Printf("[Mock] Seeded %d products", len(ids))
		log.Printf("[Mock] Customer: %s / %s", mockapi.DemoEmail, mockapi.DemoPassword)
		log.Printf("[Mock] Admin:    %s / %s", mockapi.AdminEmail, mockapi.AdminPassword)
		log.Println("[Mock] ========================================")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[Mock] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Mock] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// ============================================
// Demo
// ============================================

func runDemo() error {
	ctx := context.Background()

	srv := mockapi.New()
	ids, err := srv.Seed()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	server := &http.Server{Handler: srv.Handler()}
	go func() {
		if err := server.Serve(ln); err != http.ErrServerClosed {
			log.Printf("[Mock] Server error: %v", err)
		}
	}()
	defer server.Close()

	cfg := config.Default()
	cfg.APIURL = "http://" + ln.Addr().String() + "/api"

	log.Println("[Storefront] ========================================")
	log.Println("[Storefront] Demo session")
	log.Printf("[Storefront] Backend: %s", cfg.APIURL)
	log.Println("[Storefront] ========================================")

	app, err := storefront.New(ctx, cfg, storefront.Options{})
	if err != nil {
		return err
	}
	defer app.Close()
	app.Start(ctx)

	if res := app.Cart.AddItem(ctx, ids[4], 1, nil); !res.Success {
		return errors.New(res.Error)
	}
	guest := app.Cart.Snapshot()
	log.Printf("[Storefront] Guest cart: %d item(s)", guest.ItemCount())

	if res := app.Session.Login(ctx, session.Credentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword}); !res.Success {
		return errors.New(res.Error)
	}
	app.Cart.Wait()
	app.Wishlist.Wait()
	if res := app.Cart.MergeGuestCart(ctx, guest); !res.Success {
		return errors.New(res.Error)
	}
	log.Printf("[Storefront] Logged in as %s, cart has %d item(s) after merge", app.Session.Current().Email, app.Cart.ItemCount())

	if res := app.Wishlist.AddItem(ctx, ids[2], "for the gala", wishlist.PriorityHigh); !res.Success {
		return errors.New(res.Error)
	}
	moved := app.Wishlist.MoveToCart(ctx, ids[2], 1, &cart.Variant{Size: "S"})
	if !moved.Success {
		return errors.New(moved.Error)
	}
	log.Printf("[Storefront] Moved dress to cart: wishlist %d, cart %d item(s)", app.Wishlist.ItemCount(), app.Cart.ItemCount())
	printCart(app)

	order := app.Checkout(ctx, orders.CreateRequest{
		ShippingAddress: orders.ShippingAddress{FullName: "Demo Customer", Street: "1 Main St", City: "Springfield", ZipCode: "12345", Country: "US"},
		PaymentMethod:   "card",
	})
	if !order.Success {
		return errors.New(order.Error)
	}
	log.Printf("[Storefront] Order %s placed: total %s", order.Data.OrderNumber, order.Data.TotalPrice.StringFixed(2))

	app.Session.Logout(ctx)
	log.Println("[Storefront] Logged out")
	return nil
}

// ============================================
// Commands
// ============================================

func runCommand(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	app, err := storefront.New(ctx, cfg, storefront.Options{
		OnSessionExpired: func() { log.Println("[Storefront] Session expired, please log in again") },
	})
	if err != nil {
		return err
	}
	defer app.Close()
	if res := app.Start(ctx); !res.Success {
		log.Printf("[Storefront] %s", res.Error)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	switch cmd {
	case "products":
		search := fs.String("search", "", "search term")
		page := fs.Int("page", 1, "page number")
		_ = fs.Parse(args)
		return listProducts(ctx, app, catalog.ProductQuery{Search: *search, Page: *page})

	case "login":
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		_ = fs.Parse(args)
		res := app.Session.Login(ctx, session.Credentials{Email: *email, Password: *password})
		if !res.Success {
			return errors.New(res.Error)
		}
		fmt.Printf("Logged in as %s (%s)\n", res.Data.Name, res.Data.Email)

	case "logout":
		app.Session.Logout(ctx)
		fmt.Println("Logged out")

	case "whoami":
		s := app.Session.Current()
		if !s.Authenticated {
			fmt.Println("Not logged in")
			return nil
		}
		fmt.Printf("%s <%s> role=%s\n", s.Name, s.Email, s.Role)

	case "cart":
		if res := app.Cart.Load(ctx); !res.Success {
			return errors.New(res.Error)
		}
		printCart(app)

	case "add", "remove":
		product := fs.String("product", "", "product id")
		qty := fs.Int("qty", 1, "quantity")
		size := fs.String("size", "", "variant size")
		color := fs.String("color", "", "variant color")
		_ = fs.Parse(args)
		var variant *cart.Variant
		if *size != "" || *color != "" {
			variant = &cart.Variant{Size: *size, Color: *color}
		}
		if res := app.Cart.Load(ctx); !res.Success {
			return errors.New(res.Error)
		}
		var res result.Result[*cart.Cart]
		if cmd == "add" {
			res = app.Cart.AddItem(ctx, *product, *qty, variant)
		} else {
			res = app.Cart.RemoveItem(ctx, *product, variant)
		}
		if !res.Success {
			return errors.New(res.Error)
		}
		printCart(app)

	case "wishlist":
		res := app.Wishlist.Load(ctx)
		if !res.Success {
			return errors.New(res.Error)
		}
		for _, item := range res.Data.Items {
			fmt.Printf("%-24s %-8s %s\n", item.Product.ID, item.Priority, item.Product.Name)
		}
		if url := app.ShareURL(); url != "" {
			fmt.Println("Shared at", url)
		}

	case "checkout":
		var addr orders.ShippingAddress
		fs.StringVar(&addr.FullName, "name", "", "recipient name")
		fs.StringVar(&addr.Street, "street", "", "street")
		fs.StringVar(&addr.City, "city", "", "city")
		fs.StringVar(&addr.ZipCode, "zip", "", "zip code")
		fs.StringVar(&addr.Country, "country", "", "country")
		payment := fs.String("payment", "card", "payment method")
		_ = fs.Parse(args)
		res := app.Checkout(ctx, orders.CreateRequest{ShippingAddress: addr, PaymentMethod: *payment})
		if !res.Success {
			return errors.New(res.Error)
		}
		fmt.Printf("Order %s placed: total %s\n", res.Data.OrderNumber, res.Data.TotalPrice.StringFixed(2))

	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	return nil
}

func listProducts(ctx context.Context, app *storefront.App, q catalog.ProductQuery) error {
	page, err := app.Catalog.Products(ctx, q)
	if err != nil {
		return err
	}
	for _, p := range page.Products {
		fmt.Printf("%-24s %10s  %s\n", p.ID, p.Price.StringFixed(2), p.Name)
	}
	fmt.Printf("page %d of %d (%d products)\n", page.Pagination.Page, page.Pagination.Pages, page.Pagination.Total)
	return nil
}

func printCart(app *storefront.App) {
	c := app.Cart.Snapshot()
	if c == nil || len(c.Items) == 0 {
		fmt.Println("Cart is empty")
		return
	}
	for _, item := range c.Items {
		label := item.Product.Name
		if item.Variant != nil {
			label += fmt.Sprintf(" (%s %s)", item.Variant.Size, item.Variant.Color)
		}
		fmt.Printf("%3d x %-40s %10s\n", item.Quantity, label, item.UnitPrice().StringFixed(2))
	}
	fmt.Printf("Total: %s\n", app.Cart.TotalMoney())
}
