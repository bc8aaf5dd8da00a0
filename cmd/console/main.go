package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/examples/graph"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/poolmirror/poolmirror-go/protocols/uniswapv2/calculator"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
	uniswapv3calculator "github.com/poolmirror/poolmirror-go/protocols/uniswapv3/calculator"
	"github.com/poolmirror/poolmirror-go/registry"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

func main() {
	file := flag.String("file", "snapshot.json", "Path to an exported snapshot document.")
	flag.Parse()

	doc, reg, err := loadSnapshot(*file)
	if err != nil {
		fmt.Println(Red + "Failed to load snapshot: " + err.Error() + Reset)
		os.Exit(1)
	}

	runConsole(doc, reg)
}

func loadSnapshot(path string) (*registry.Document, *registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var doc registry.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}

	reg := registry.New()
	if err := reg.Import(doc.Pools); err != nil {
		return nil, nil, err
	}
	if err := reg.Commit(); err != nil {
		return nil, nil, err
	}
	return &doc, reg, nil
}

func runConsole(doc *registry.Document, reg *registry.Registry) {
	reader := bufio.NewReader(os.Stdin)

	for {
		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)

		handleCommand(input, doc, reg, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "POOL MIRROR CONSOLE" + Reset + Gray + " | snapshot inspector" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Snapshot Info\n", Cyan, Reset)
	fmt.Printf(" %s2.%s List Pools\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Inspect Pool %s(by Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Quote Swap   %s(exact in)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Price Impact\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Route        %s(Algo Router)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(input string, doc *registry.Document, reg *registry.Registry, reader *bufio.Reader) {
	switch input {
	case "1":
		printSnapshotInfo(doc, reg)
	case "2":
		listPools(reg)
	case "3":
		inspectPool(reg, reader)
	case "4":
		quoteSwap(reg, reader)
	case "5":
		priceImpact(reg, reader)
	case "6":
		findRoute(reg, reader)
	case "q":
		fmt.Println("Bye.")
		os.Exit(0)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printSnapshotInfo(doc *registry.Document, reg *registry.Registry) {
	v2Count, v3Count := 0, 0
	for _, addr := range reg.Addresses() {
		pool, _ := reg.Get(addr)
		switch pool.PoolVariant() {
		case amm.ConstantProduct:
			v2Count++
		case amm.ConcentratedLiquidity:
			v3Count++
		}
	}

	fmt.Printf("\n%sSTATUS  ::%s Block %s#%d%s | Hash %s%s%s\n",
		Green, Reset,
		Bold, doc.BlockNumber, Reset,
		Bold, shorten(doc.BlockHash), Reset,
	)
	fmt.Printf("%sPOOLS   ::%s %d constant-product, %d concentrated-liquidity\n",
		Green, Reset, v2Count, v3Count)
}

func listPools(reg *registry.Registry) {
	header("TRACKED POOLS")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tVARIANT\tTOKEN0\tTOKEN1\t")
	fmt.Fprintln(w, "-------\t-------\t------\t------\t")

	addrs := reg.Addresses()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
	for _, addr := range addrs {
		pool, _ := reg.Get(addr)
		token0, token1 := poolTokens(pool)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			addr.Hex(), pool.PoolVariant(), shorten(token0.Hex()), shorten(token1.Hex()))
	}
	w.Flush()
}

func inspectPool(reg *registry.Registry, reader *bufio.Reader) {
	pool, err := readPool(reg, reader)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}

	header("POOL " + pool.PoolAddress().Hex())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	switch p := pool.(type) {
	case *uniswapv2.Pool:
		fmt.Fprintf(w, "Variant\t%s\t\n", p.PoolVariant())
		fmt.Fprintf(w, "Reserve0\t%s\t\n", p.Reserve0)
		fmt.Fprintf(w, "Reserve1\t%s\t\n", p.Reserve1)
		fmt.Fprintf(w, "Fee\t%d bps\t\n", p.FeeBps)
	case *uniswapv3.Pool:
		fmt.Fprintf(w, "Variant\t%s\t\n", p.PoolVariant())
		fmt.Fprintf(w, "SqrtPriceX96\t%s\t\n", p.SqrtPriceX96)
		fmt.Fprintf(w, "Tick\t%d\t\n", p.Tick)
		fmt.Fprintf(w, "Liquidity\t%s\t\n", p.Liquidity)
		fmt.Fprintf(w, "Initialized ticks\t%d\t\n", len(p.Ticks))
	}
	w.Flush()
}

func quoteSwap(reg *registry.Registry, reader *bufio.Reader) {
	pool, err := readPool(reg, reader)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	tokenIn, err := readAddress(reader, "Token in: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	amountIn, err := readAmount(reader, "Amount in: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}

	var amountOut *big.Int
	switch p := pool.(type) {
	case *uniswapv2.Pool:
		amountOut, err = uniswapv2calculator.GetAmountOut(amountIn, tokenIn, p)
	case *uniswapv3.Pool:
		amountOut, err = uniswapv3calculator.GetAmountOut(amountIn, nil, tokenIn, p)
	}
	if err != nil {
		fmt.Println(Red + "Quote failed: " + err.Error() + Reset)
		return
	}

	fmt.Printf("\n%sQUOTE ::%s %s in -> %s%s%s out\n",
		Green, Reset, amountIn, Bold, amountOut, Reset)
}

func priceImpact(reg *registry.Registry, reader *bufio.Reader) {
	pool, err := readPool(reg, reader)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	tokenIn, err := readAddress(reader, "Token in: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	amountIn, err := readAmount(reader, "Amount in: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}

	var (
		impact *big.Float
		spot   *big.Float
	)
	switch p := pool.(type) {
	case *uniswapv2.Pool:
		spot, err = uniswapv2calculator.SpotPrice(tokenIn, p)
		if err == nil {
			impact, err = uniswapv2calculator.PriceImpact(amountIn, tokenIn, p)
		}
	case *uniswapv3.Pool:
		spot, err = uniswapv3calculator.SpotPrice(tokenIn, p)
		if err == nil {
			impact, err = uniswapv3calculator.PriceImpact(amountIn, tokenIn, p)
		}
	}
	if err != nil {
		fmt.Println(Red + "Computation failed: " + err.Error() + Reset)
		return
	}

	impactPct := new(big.Float).Mul(impact, big.NewFloat(100))
	fmt.Printf("\n%sSPOT   ::%s %s\n", Green, Reset, spot.Text('g', 10))
	fmt.Printf("%sIMPACT ::%s %s%%\n", Green, Reset, impactPct.Text('f', 4))
}

func findRoute(reg *registry.Registry, reader *bufio.Reader) {
	tokenIn, err := readAddress(reader, "Token in: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	tokenOut, err := readAddress(reader, "Token out: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	amountIn, err := readAmount(reader, "Amount in: ")
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}

	pools := make([]amm.Pool, 0, reg.Len())
	for _, addr := range reg.Addresses() {
		pool, _ := reg.Get(addr)
		pools = append(pools, pool)
	}

	g, err := graph.New(pools)
	if err != nil {
		fmt.Println(Red + "Graph build failed: " + err.Error() + Reset)
		return
	}

	hops, amountOut, err := g.BestRoute(tokenIn, tokenOut, amountIn, 3)
	if err != nil {
		fmt.Println(Red + "Routing failed: " + err.Error() + Reset)
		return
	}

	header("BEST ROUTE")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "HOP\tPOOL\tTOKEN IN\tTOKEN OUT\t")
	for i, hop := range hops {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n",
			i+1, hop.Pool.Hex(), shorten(hop.TokenIn.Hex()), shorten(hop.TokenOut.Hex()))
	}
	w.Flush()
	fmt.Printf("\n%sOUTPUT ::%s %s%s%s\n", Green, Reset, Bold, amountOut, Reset)
}

// --- INPUT HELPERS ---

func readPool(reg *registry.Registry, reader *bufio.Reader) (amm.Pool, error) {
	addr, err := readAddress(reader, "Pool address: ")
	if err != nil {
		return nil, err
	}
	pool, ok := reg.Get(addr)
	if !ok {
		return nil, fmt.Errorf("pool %s not in snapshot", addr.Hex())
	}
	return pool, nil
}

func readAddress(reader *bufio.Reader, prompt string) (common.Address, error) {
	fmt.Print(Bold + prompt + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return common.Address{}, err
	}
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", input)
	}
	return common.HexToAddress(input), nil
}

func readAmount(reader *bufio.Reader, prompt string) (*big.Int, error) {
	fmt.Print(Bold + prompt + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	input = strings.TrimSpace(input)
	amount, ok := new(big.Int).SetString(input, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%q is not a positive integer", input)
	}
	return amount, nil
}

func poolTokens(pool amm.Pool) (common.Address, common.Address) {
	switch p := pool.(type) {
	case *uniswapv2.Pool:
		return p.Token0, p.Token1
	case *uniswapv3.Pool:
		return p.Token0, p.Token1
	}
	return common.Address{}, common.Address{}
}

func shorten(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:8] + ".." + hex[len(hex)-4:]
}
