// Package std provides the built-in actors used by the folding operators,
// the runners and the tests: static extraction, column centering, mean
// prediction, label extraction, fold splitting, the concat/merge aggregators
// backing the stacking ensembler and the mse scoring metric.
//
// These actors compute on the task.Table payload; the framework core itself
// never does.
package std

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/latticeml/lattice/pkg/task"
)

// Actor registry names.
const (
	StaticName     = "std.static"
	IdentityName   = "std.identity"
	CenterName     = "std.center"
	MeanModelName  = "std.mean"
	LabelName      = "std.label"
	SplitName      = "std.split"
	ConcatRowsName = "std.concat.rows"
	ConcatColsName = "std.concat.cols"
	MeanMergeName  = "std.merge.mean"
	MSEName        = "std.mse"
)

// Register installs all built-in actors into the given registry.
func Register(r *task.Registry) error {
	for name, builder := range map[string]task.Builder{
		StaticName:     newStatic,
		IdentityName:   newIdentity,
		CenterName:     newCenter,
		MeanModelName:  newMeanModel,
		LabelName:      newLabel,
		SplitName:      newSplit,
		ConcatRowsName: newConcatRows,
		ConcatColsName: newConcatCols,
		MeanMergeName:  newMeanMerge,
		MSEName:        newMSE,
	} {
		if err := r.Register(name, builder); err != nil {
			return err
		}
	}
	return nil
}

// Static returns a source spec yielding the given table on every extraction.
func Static(data task.Table) task.Spec {
	return task.Spec{Actor: StaticName, Params: map[string]any{"data": data}, SzIn: 0, SzOut: 1}
}

// Identity returns a stateless pass-through mapper spec.
func Identity() task.Spec {
	return task.Spec{Actor: IdentityName, SzIn: 1, SzOut: 1}
}

// Center returns a stateful mapper spec subtracting trained column means.
func Center() task.Spec {
	return task.Spec{Actor: CenterName, SzIn: 1, SzOut: 1, Stateful: true}
}

// MeanModel returns a stateful estimator spec predicting the trained label
// mean for every input row.
func MeanModel() task.Spec {
	return task.Spec{Actor: MeanModelName, SzIn: 1, SzOut: 1, Stateful: true}
}

// Label returns a labeler spec splitting the named column off the dataset.
func Label(column string) task.Spec {
	return task.Spec{Actor: LabelName, Params: map[string]any{"column": column}, SzIn: 1, SzOut: 2}
}

// Split returns a fold splitter spec with 2*folds outputs: for fold f,
// output 2f carries the training split and 2f+1 the validation split.
func Split(folds int) task.Spec {
	return task.Spec{Actor: SplitName, Params: map[string]any{"folds": folds}, SzIn: 1, SzOut: 2 * folds}
}

// ConcatRows returns an aggregator spec stacking n tables by rows.
func ConcatRows(n int) task.Spec {
	return task.Spec{Actor: ConcatRowsName, SzIn: n, SzOut: 1}
}

// ConcatCols returns an aggregator spec joining n tables by columns.
func ConcatCols(n int) task.Spec {
	return task.Spec{Actor: ConcatColsName, SzIn: n, SzOut: 1}
}

// MeanMerge returns an aggregator spec averaging n per-fold prediction
// tables column by column.
func MeanMerge(n int) task.Spec {
	return task.Spec{Actor: MeanMergeName, SzIn: n, SzOut: 1}
}

// MSE returns a metric spec computing the mean squared error between a
// prediction table and the ground truth.
func MSE() task.Spec {
	return task.Spec{Actor: MSEName, SzIn: 2, SzOut: 1}
}

type static struct {
	data task.Table
}

func newStatic(params map[string]any) (task.Actor, error) {
	data, ok := params["data"].(task.Table)
	if !ok {
		return nil, fmt.Errorf("std: static source requires a %q table parameter", "data")
	}
	return static{data: data}, nil
}

func (s static) Apply(_ context.Context, _ ...any) ([]any, error) {
	return []any{s.data}, nil
}

type identity struct{}

func newIdentity(map[string]any) (task.Actor, error) { return identity{}, nil }

func (identity) Apply(_ context.Context, args ...any) ([]any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("std: identity takes one argument, got %d", len(args))
	}
	return []any{args[0]}, nil
}

// center subtracts trained per-column means. Untrained it passes data
// through unchanged, which makes before/after training observably different.
type center struct {
	means []float64
}

func newCenter(map[string]any) (task.Actor, error) { return &center{}, nil }

func (c *center) Apply(_ context.Context, args ...any) ([]any, error) {
	data, err := oneTable(args)
	if err != nil {
		return nil, err
	}
	if c.means == nil {
		return []any{data}, nil
	}
	if len(c.means) != len(data.Columns) {
		return nil, fmt.Errorf("std: center trained on %d columns, applied to %d", len(c.means), len(data.Columns))
	}
	rows := make([][]float64, len(data.Rows))
	for i, row := range data.Rows {
		shifted := make([]float64, len(row))
		for j, v := range row {
			shifted[j] = v - c.means[j]
		}
		rows[i] = shifted
	}
	return []any{task.Table{Columns: data.Columns, Rows: rows}}, nil
}

func (c *center) Train(_ context.Context, features, _ any) error {
	data, err := task.AsTable(features)
	if err != nil {
		return err
	}
	c.means = columnMeans(data)
	return nil
}

func (c *center) State() ([]byte, error) { return json.Marshal(c.means) }

func (c *center) SetState(snapshot []byte) error {
	if snapshot == nil {
		c.means = nil
		return nil
	}
	return json.Unmarshal(snapshot, &c.means)
}

// meanModel predicts the trained label mean for every row.
type meanModel struct {
	mean    []float64
	trained bool
}

func newMeanModel(map[string]any) (task.Actor, error) { return &meanModel{}, nil }

func (m *meanModel) Apply(_ context.Context, args ...any) ([]any, error) {
	data, err := oneTable(args)
	if err != nil {
		return nil, err
	}
	if !m.trained {
		return nil, fmt.Errorf("std: mean model applied before training")
	}
	columns := make([]string, len(m.mean))
	for i := range columns {
		columns[i] = fmt.Sprintf("prediction_%d", i)
	}
	rows := make([][]float64, data.Len())
	for i := range rows {
		row := make([]float64, len(m.mean))
		copy(row, m.mean)
		rows[i] = row
	}
	return []any{task.Table{Columns: columns, Rows: rows}}, nil
}

func (m *meanModel) Train(_ context.Context, _, labels any) error {
	data, err := task.AsTable(labels)
	if err != nil {
		return err
	}
	m.mean = columnMeans(data)
	m.trained = true
	return nil
}

func (m *meanModel) State() ([]byte, error) {
	if !m.trained {
		return nil, nil
	}
	return json.Marshal(m.mean)
}

func (m *meanModel) SetState(snapshot []byte) error {
	if snapshot == nil {
		m.mean = nil
		m.trained = false
		return nil
	}
	m.trained = true
	return json.Unmarshal(snapshot, &m.mean)
}

// label splits the configured column off the dataset: output 0 keeps the
// remaining feature columns, output 1 carries the label column alone.
type label struct {
	column string
}

func newLabel(params map[string]any) (task.Actor, error) {
	column, ok := params["column"].(string)
	if !ok || column == "" {
		return nil, fmt.Errorf("std: label extractor requires a %q parameter", "column")
	}
	return label{column: column}, nil
}

func (l label) Apply(_ context.Context, args ...any) ([]any, error) {
	data, err := oneTable(args)
	if err != nil {
		return nil, err
	}
	target := -1
	for i, c := range data.Columns {
		if c == l.column {
			target = i
			break
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("std: label column %q not present", l.column)
	}
	featureCols := make([]string, 0, len(data.Columns)-1)
	for i, c := range data.Columns {
		if i != target {
			featureCols = append(featureCols, c)
		}
	}
	features := make([][]float64, data.Len())
	labels := make([][]float64, data.Len())
	for i, row := range data.Rows {
		feature := make([]float64, 0, len(row)-1)
		for j, v := range row {
			if j != target {
				feature = append(feature, v)
			}
		}
		features[i] = feature
		labels[i] = []float64{row[target]}
	}
	return []any{
		task.Table{Columns: featureCols, Rows: features},
		task.Table{Columns: []string{l.column}, Rows: labels},
	}, nil
}

// split partitions rows round-robin into the configured number of folds.
// The assignment depends only on the row count, so feature and label
// splitters parameterized alike stay aligned.
type split struct {
	folds int
}

func newSplit(params map[string]any) (task.Actor, error) {
	folds, ok := params["folds"].(int)
	if !ok || folds < 2 {
		return nil, fmt.Errorf("std: split requires a %q parameter of at least 2", "folds")
	}
	return split{folds: folds}, nil
}

func (s split) Apply(_ context.Context, args ...any) ([]any, error) {
	data, err := oneTable(args)
	if err != nil {
		return nil, err
	}
	outputs := make([]any, 0, 2*s.folds)
	for fold := 0; fold < s.folds; fold++ {
		var trainIdx, validIdx []int
		for row := 0; row < data.Len(); row++ {
			if row%s.folds == fold {
				validIdx = append(validIdx, row)
			} else {
				trainIdx = append(trainIdx, row)
			}
		}
		outputs = append(outputs, data.Select(trainIdx), data.Select(validIdx))
	}
	return outputs, nil
}

type concatRows struct{}

func newConcatRows(map[string]any) (task.Actor, error) { return concatRows{}, nil }

func (concatRows) Apply(_ context.Context, args ...any) ([]any, error) {
	tables, err := allTables(args)
	if err != nil {
		return nil, err
	}
	out := task.Table{Columns: tables[0].Columns}
	for _, t := range tables {
		if len(t.Columns) != len(out.Columns) {
			return nil, fmt.Errorf("std: concat.rows column mismatch (%d vs %d)", len(t.Columns), len(out.Columns))
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return []any{out}, nil
}

type concatCols struct{}

func newConcatCols(map[string]any) (task.Actor, error) { return concatCols{}, nil }

func (concatCols) Apply(_ context.Context, args ...any) ([]any, error) {
	tables, err := allTables(args)
	if err != nil {
		return nil, err
	}
	out := task.Table{Rows: make([][]float64, tables[0].Len())}
	for _, t := range tables {
		if t.Len() != len(out.Rows) {
			return nil, fmt.Errorf("std: concat.cols row mismatch (%d vs %d)", t.Len(), len(out.Rows))
		}
		out.Columns = append(out.Columns, t.Columns...)
		for i, row := range t.Rows {
			out.Rows[i] = append(out.Rows[i], row...)
		}
	}
	return []any{out}, nil
}

// meanMerge averages the per-fold prediction tables cell by cell. All inputs
// must share one shape; the first table supplies the column names.
type meanMerge struct{}

func newMeanMerge(map[string]any) (task.Actor, error) { return meanMerge{}, nil }

func (meanMerge) Apply(_ context.Context, args ...any) ([]any, error) {
	tables, err := allTables(args)
	if err != nil {
		return nil, err
	}
	first := tables[0]
	rows := make([][]float64, first.Len())
	for i := range rows {
		rows[i] = make([]float64, len(first.Columns))
	}
	for _, t := range tables {
		if t.Len() != first.Len() || len(t.Columns) != len(first.Columns) {
			return nil, fmt.Errorf("std: merge.mean shape mismatch")
		}
		for i, row := range t.Rows {
			for j, v := range row {
				rows[i][j] += v
			}
		}
	}
	for i := range rows {
		for j := range rows[i] {
			rows[i][j] /= float64(len(tables))
		}
	}
	return []any{task.Table{Columns: first.Columns, Rows: rows}}, nil
}

type mse struct{}

func newMSE(map[string]any) (task.Actor, error) { return mse{}, nil }

func (mse) Apply(_ context.Context, args ...any) ([]any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("std: mse takes predictions and truth, got %d arguments", len(args))
	}
	prediction, err := task.AsTable(args[0])
	if err != nil {
		return nil, err
	}
	truth, err := task.AsTable(args[1])
	if err != nil {
		return nil, err
	}
	if prediction.Len() != truth.Len() {
		return nil, fmt.Errorf("std: mse over %d predictions and %d truths", prediction.Len(), truth.Len())
	}
	if prediction.Len() == 0 {
		return nil, fmt.Errorf("std: mse over empty tables")
	}
	var sum float64
	var cells int
	for i, row := range prediction.Rows {
		if len(row) != len(truth.Rows[i]) {
			return nil, fmt.Errorf("std: mse row %d shape mismatch", i)
		}
		for j, v := range row {
			d := v - truth.Rows[i][j]
			sum += d * d
			cells++
		}
	}
	return []any{task.Table{Columns: []string{"mse"}, Rows: [][]float64{{sum / float64(cells)}}}}, nil
}

func oneTable(args []any) (task.Table, error) {
	if len(args) != 1 {
		return task.Table{}, fmt.Errorf("std: expected one argument, got %d", len(args))
	}
	return task.AsTable(args[0])
}

func allTables(args []any) ([]task.Table, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("std: expected at least one argument")
	}
	tables := make([]task.Table, len(args))
	for i, a := range args {
		t, err := task.AsTable(a)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	return tables, nil
}

func columnMeans(data task.Table) []float64 {
	means := make([]float64, len(data.Columns))
	if data.Len() == 0 {
		return means
	}
	for _, row := range data.Rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(data.Len())
	}
	return means
}
