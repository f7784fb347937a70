package cmd

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nci/gocube/collection"
)

var crawlOutput string

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [ard_directory]",
	Short: "Index a directory of ARD metadata into a JSON manifest",
	Long: `Walk a directory tree of Sentinel-2 ARD yaml documents and
	write the image descriptors as a JSON manifest consumable by the
	"json" collection source format.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()

		images, err := collection.LoadSentinel2YamlDir(args[0])
		if err != nil {
			logrus.Fatal(err)
		}
		if len(images) == 0 {
			logrus.Fatalf("no ARD documents found under %s", args[0])
		}
		logrus.Infof("indexed %d images", len(images))

		manifest := struct {
			Images []*collection.Image `json:"images"`
		}{Images: images}

		raw, err := json.MarshalIndent(&manifest, "", "  ")
		if err != nil {
			logrus.Fatal(err)
		}

		out := os.Stdout
		if len(crawlOutput) > 0 {
			out, err = os.Create(crawlOutput)
			if err != nil {
				logrus.Fatal(err)
			}
			defer out.Close()
		}
		if _, err := out.Write(raw); err != nil {
			logrus.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVarP(&crawlOutput, "output", "o", "", "Output manifest path, stdout when omitted")
}
