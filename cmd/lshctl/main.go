package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lshkit/lshkit/pkg/lsh"
	"github.com/lshkit/lshkit/pkg/stats"
	"github.com/lshkit/lshkit/pkg/store"
)

var (
	dbPath       string
	dimensions   int
	nTables      int
	nProjections int
	seed         uint64
	family       string
	slotWidth    float64
	onlyIndex    bool
	probeBudget  int
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "lshctl",
	Short: "CLI tool for SQLite-backed LSH indexes",
	Long:  `A command-line interface for building and querying locality-sensitive hash indexes stored in SQLite.`,
}

// openIndex builds (or reattaches to) the index described by the flags.
func openIndex() (*lsh.LSH[float32, int32], error) {
	b := lsh.NewSQL[float32, int32](nProjections, nTables, dimensions).
		Seed(seed).
		SetDatabaseFile(dbPath)
	if onlyIndex {
		b.OnlyIndex()
	}
	if probeBudget > 0 {
		b.MultiProbe(probeBudget)
	}
	if verbose {
		b.Logger(store.NewStdLogger(store.LevelDebug))
	}
	switch family {
	case "srp":
		return lsh.SRP(b)
	case "l2":
		return lsh.L2(b, slotWidth)
	default:
		return nil, fmt.Errorf("unknown hash family: %s (want srp or l2)", family)
	}
}

// parseVector parses a comma-separated list of numbers.
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new LSH index",
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := openIndex()
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		defer index.Close()

		if err := index.Commit(); err != nil {
			return err
		}
		fmt.Printf("LSH index initialized at %s (%s, K=%d, L=%d, dim=%d)\n",
			dbPath, family, nProjections, nTables, dimensions)
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:   "store <vector>...",
	Short: "Store one or more vectors",
	Long:  `Store vectors given as comma-separated numbers, e.g. "1.5,2,3".`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := openIndex()
		if err != nil {
			return err
		}
		defer index.Close()

		vs := make([][]float32, 0, len(args))
		for _, arg := range args {
			v, err := parseVector(arg)
			if err != nil {
				return err
			}
			vs = append(vs, v)
		}
		ids, err := index.StoreVecs(vs)
		if err != nil {
			return err
		}
		if err := index.Commit(); err != nil {
			return err
		}
		for i, id := range ids {
			fmt.Printf("stored %s as id %d\n", args[i], id)
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <vector>",
	Short: "Query the bucket union of a vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := openIndex()
		if err != nil {
			return err
		}
		defer index.Close()

		v, err := parseVector(args[0])
		if err != nil {
			return err
		}
		ids, err := index.QueryBucketIDs(v)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no candidates found")
			return nil
		}
		fmt.Printf("candidates: %v\n", ids)
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := openIndex()
		if err != nil {
			return err
		}
		defer index.Close()

		desc, err := index.Describe()
		if err != nil {
			return err
		}
		fmt.Print(desc)
		return nil
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Estimate the table count for a target recall",
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, _ := cmd.Flags().GetFloat64("delta")
		cosine, _ := cmd.Flags().GetFloat64("cosine")

		var p1 float64
		switch family {
		case "srp":
			p1 = stats.SRPPH(cosine)
		case "l2":
			p1 = stats.L2PH(slotWidth, 1)
		default:
			return fmt.Errorf("unknown hash family: %s (want srp or l2)", family)
		}
		l := stats.EstimateL(delta, p1, nProjections)
		fmt.Printf("family=%s p1=%.4f K=%d -> L=%d\n", family, p1, nProjections, l)
		return nil
	},
}

func init() {
	defaultDB := fmt.Sprintf("lsh-%s.db", uuid.New().String()[:8])
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "SQLite database file")
	rootCmd.PersistentFlags().IntVar(&dimensions, "dim", 0, "Input vector dimension")
	rootCmd.PersistentFlags().IntVar(&nTables, "tables", 10, "Number of hash tables (L)")
	rootCmd.PersistentFlags().IntVar(&nProjections, "projections", 8, "Codeword length (K)")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Hasher seed (0 seeds from the OS)")
	rootCmd.PersistentFlags().StringVar(&family, "family", "srp", "Hash family: srp or l2")
	rootCmd.PersistentFlags().Float64Var(&slotWidth, "r", 4.0, "Slot width of the l2 family")
	rootCmd.PersistentFlags().BoolVar(&onlyIndex, "only-index", false, "Store ids only, no vectors")
	rootCmd.PersistentFlags().IntVar(&probeBudget, "probes", 0, "Multi-probe budget (0 disables)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	paramsCmd.Flags().Float64("delta", 0.2, "Probability of missing the nearest neighbor")
	paramsCmd.Flags().Float64("cosine", 0.9, "Cosine similarity of interest (srp)")

	rootCmd.AddCommand(initCmd, storeCmd, queryCmd, describeCmd, paramsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.SetFlags(0)
		log.Println(err)
		os.Exit(1)
	}
}
