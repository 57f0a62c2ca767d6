package config

import "sort"

// Dataset describes one benchmark dataset: its index identifiers per
// retriever backend, retrieval weighting, and evaluation setup. The registry
// is fixed; configs select datasets by name.
type Dataset struct {
	Name string

	// Topics and Qrels identify the standard topic and judgment sets.
	// Qrels is empty for datasets that require a user-supplied path.
	Topics string
	Qrels  string

	// Index identifiers per retriever backend.
	IndexBM25   string
	IndexSPLADE string
	IndexBGE    string

	// BM25 weighting used for both full and context retrieval.
	BM25K1 float64
	BM25B  float64

	// Metrics are trec_eval metric names computed for this dataset.
	Metrics []string

	// Group distinguishes TREC DL from BEIR conventions (judgment
	// thresholds, dense-retrieval query handling).
	Group string
}

const (
	// GroupTREC marks TREC Deep Learning datasets (relevance threshold 2).
	GroupTREC = "trec"
	// GroupBEIR marks BEIR datasets.
	GroupBEIR = "beir"
)

func trecDL(name, topics string) Dataset {
	return Dataset{
		Name:        name,
		Topics:      topics,
		Qrels:       topics,
		IndexBM25:   "msmarco-v1-passage",
		IndexSPLADE: "msmarco-v1-passage-splade-pp-ed",
		IndexBGE:    "msmarco-v1-passage.bge-base-en-v1.5",
		BM25K1:      0.9,
		BM25B:       0.4,
		Metrics:     []string{"ndcg_cut_10", "recall_1000"},
		Group:       GroupTREC,
	}
}

func beir(name, slug string) Dataset {
	return Dataset{
		Name:        name,
		Topics:      "beir-v1.0.0-" + slug + "-test",
		Qrels:       "beir-v1.0.0-" + slug + "-test",
		IndexBM25:   "beir-v1.0.0-" + slug + ".flat",
		IndexSPLADE: "beir-v1.0.0-" + slug + "-splade-pp-ed",
		IndexBGE:    "beir-v1.0.0-" + slug + ".bge-base-en-v1.5",
		BM25K1:      0.9,
		BM25B:       0.4,
		Metrics:     []string{"ndcg_cut_10", "recall_100"},
		Group:       GroupBEIR,
	}
}

var datasets = func() map[string]Dataset {
	all := []Dataset{
		trecDL("dl19", "dl19-passage"),
		trecDL("dl20", "dl20-passage"),
		func() Dataset {
			// DL-HARD reuses the dl19 indexes; qrels come from a
			// user-supplied file.
			d := trecDL("dlhard", "dl19-passage")
			d.Qrels = ""
			return d
		}(),
		beir("scifact", "scifact"),
		beir("arguana", "arguana"),
		beir("covid", "trec-covid"),
		beir("fiqa", "fiqa"),
		beir("dbpedia", "dbpedia-entity"),
		beir("news", "trec-news"),
	}
	m := make(map[string]Dataset, len(all))
	for _, d := range all {
		m[d.Name] = d
	}
	return m
}()

// LookupDataset returns the dataset registered under name.
func LookupDataset(name string) (Dataset, bool) {
	d, ok := datasets[name]
	return d, ok
}

// DatasetNames returns all registered dataset names, sorted.
func DatasetNames() []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexFor returns the dataset's index identifier for a retriever backend.
func (d Dataset) IndexFor(retriever string) string {
	switch retriever {
	case "splade":
		return d.IndexSPLADE
	case "bge":
		return d.IndexBGE
	default:
		return d.IndexBM25
	}
}
