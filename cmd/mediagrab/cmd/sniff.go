package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peterzhang0216/mediagrab/internal/detector"
	"github.com/peterzhang0216/mediagrab/internal/helpers"
	"github.com/peterzhang0216/mediagrab/internal/models"
	"github.com/peterzhang0216/mediagrab/internal/store"
	"github.com/peterzhang0216/mediagrab/internal/webclient"
)

var (
	sniffTypeFlag     string
	sniffMinScoreFlag int
	sniffLimitFlag    int
	sniffJSONFlag     bool
)

var sniffCmd = &cobra.Command{
	Use:   "sniff <page-url>",
	Short: "Scan a web page for downloadable media resources",
	Long: `Sniff fetches a page, detects media resources in its markup
(images, video, audio, CSS backgrounds, streaming manifests), scores each
find, and prints them ranked by score.`,
	Args: cobra.ExactArgs(1),
	RunE: runSniff,
}

func init() {
	sniffCmd.Flags().StringVarP(&sniffTypeFlag, "type", "t", "", "Only show resources of this type (image, video, audio, other)")
	sniffCmd.Flags().IntVar(&sniffMinScoreFlag, "min-score", 0, "Only show resources scoring at least this value")
	sniffCmd.Flags().IntVarP(&sniffLimitFlag, "limit", "l", 0, "Maximum resources to show (0 shows all)")
	sniffCmd.Flags().BoolVar(&sniffJSONFlag, "json", false, "Emit machine-readable JSON instead of a table")
	rootCmd.AddCommand(sniffCmd)
}

func runSniff(cmd *cobra.Command, args []string) error {
	pageURL := args[0]

	resources, err := sniffPage(pageURL)
	if err != nil {
		return err
	}
	resources = filterResources(resources, sniffTypeFlag, sniffMinScoreFlag, sniffLimitFlag)

	if sniffJSONFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resources)
	}

	printResourceTable(cmd.OutOrStdout(), resources)
	return nil
}

// sniffPage fetches a page, runs detection, and folds every candidate into
// a fresh store context keyed by the page URL. Responses observed on the
// wire during the fetch are merged in as network sightings. Predicted
// candidates are dropped when a sufficiently similar concrete resource
// already exists.
func sniffPage(pageURL string) ([]*models.Resource, error) {
	var netMu sync.Mutex
	var netCandidates []models.Candidate
	transport := httpTransport(func(c models.Candidate) {
		netMu.Lock()
		netCandidates = append(netCandidates, c)
		netMu.Unlock()
	})
	client := webclient.New(globalConfig.ClientTimeoutSec, transport)

	resp, err := client.Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	candidates, err := detector.Detect(pageURL, resp.Body)
	if err != nil {
		return nil, err
	}
	log.Infof("Detected %d candidates on %s", len(candidates), pageURL)

	netMu.Lock()
	candidates = append(candidates, netCandidates...)
	netMu.Unlock()

	resources := store.New()
	for _, c := range candidates {
		if c.IsPredicted {
			if dup := resources.FindDuplicate(pageURL, c, store.PredictedDuplicateThreshold); dup != nil {
				log.Debugf("Skipping predicted %s; similar to %s", c.URL, dup.URL)
				continue
			}
		}
		resources.AddResource(pageURL, c)
	}
	return resources.Resources(pageURL), nil
}

// filterResources applies the shared --type / --min-score / --limit
// filtering, returning the survivors ranked by score.
func filterResources(in []*models.Resource, typeFilter string, minScore, limit int) []*models.Resource {
	out := make([]*models.Resource, 0, len(in))
	for _, r := range in {
		if typeFilter != "" && r.Type != models.ParseResourceType(typeFilter) {
			continue
		}
		if r.Score < minScore {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func printResourceTable(out io.Writer, resources []*models.Resource) {
	if len(resources) == 0 {
		fmt.Fprintln(out, "No media resources found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCORE\tTYPE\tQUALITY\tSIZE\tSOURCES\tURL")
	for i, r := range resources {
		size := "-"
		if r.Size > 0 {
			size = helpers.BytesToSize(uint64(r.Size))
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%v\t%s\n", i+1, r.Score, r.Type, r.Quality, size, r.Sources, r.URL)
	}
	w.Flush()
}
