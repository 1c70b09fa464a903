package cmd

import (
	"fmt"

	"github.com/kris-hansen/redbiomctl/utils/qiita"
	"github.com/kris-hansen/redbiomctl/utils/ui"
	"github.com/spf13/cobra"
)

var (
	qiitaStudyID  int
	qiitaData     string
	qiitaDataType string
	qiitaPrepID   int
	qiitaDir      string
)

var qiitaCmd = &cobra.Command{
	Use:   "qiita",
	Short: "Links to and downloads from the public Qiita deployment",
	Long: `Build Qiita public-download links and fetch the archives they point to.

Data kinds:
  biom                BIOM tables of a study (default)
  raw                 raw sequence files of a study
  sample_information  the study's sample information file
  prep_information    one preparation's information file (needs --prep-id)`,
}

func qiitaRequest() (qiita.Request, error) {
	kind, err := qiita.ParseKind(qiitaData)
	if err != nil {
		return qiita.Request{}, err
	}
	r := qiita.Request{StudyID: qiitaStudyID, Data: kind, DataType: qiitaDataType, PrepID: qiitaPrepID}
	return r, r.Validate()
}

var qiitaURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the public download link for a study or preparation",
	Example: `  redbiomctl qiita url --study-id 10317
  redbiomctl qiita url --study-id 10317 --data raw --data-type 16S
  redbiomctl qiita url --data prep_information --prep-id 4587`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := qiitaRequest()
		if err != nil {
			return err
		}
		link, err := qiita.DownloadURL(r)
		if err != nil {
			return err
		}
		p := newPrinter()
		fmt.Fprintln(p.Out, link)
		if r.StudyID > 0 {
			p.Dim("study page: %s", qiita.StudyURL(fmt.Sprint(r.StudyID)))
		}
		return nil
	},
}

var qiitaDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a public Qiita archive",
	Example: `  redbiomctl qiita download --study-id 10317 --dir data/
  redbiomctl qiita download --study-id 10317 --data sample_information`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := qiitaRequest()
		if err != nil {
			return err
		}
		p := newPrinter()
		d := qiita.NewDownloader()
		link, err := d.URL(r)
		if err != nil {
			return err
		}
		p.Command(link)

		spinner := ui.NewSpinner()
		if !p.Color {
			spinner.Disable()
		}
		spinner.Start("Downloading")
		path, err := d.Download(cmdContext(cmd), r, qiitaDir)
		spinner.Stop()
		if err != nil {
			return err
		}
		p.Success("saved %s", path)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{qiitaURLCmd, qiitaDownloadCmd} {
		c.Flags().IntVar(&qiitaStudyID, "study-id", 0, "Qiita study id")
		c.Flags().StringVar(&qiitaData, "data", "biom", "data kind: biom, raw, sample_information or prep_information")
		c.Flags().StringVar(&qiitaDataType, "data-type", "", "restrict raw or biom data to a data type, e.g. 16S or Metagenomic")
		c.Flags().IntVar(&qiitaPrepID, "prep-id", 0, "preparation id for prep_information")
		qiitaCmd.AddCommand(c)
	}
	qiitaDownloadCmd.Flags().StringVar(&qiitaDir, "dir", ".", "directory to save the archive in")
	rootCmd.AddCommand(qiitaCmd)
}
