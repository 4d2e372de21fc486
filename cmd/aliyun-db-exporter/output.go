package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
	"github.com/fraser-isbester/aliyun-db-exporter/pkg/snapshot"
)

type SampleOutput struct {
	Family       string            `json:"family"`
	Account      string            `json:"account"`
	InstanceID   string            `json:"instance_id"`
	InstanceDesc string            `json:"instance_desc"`
	NodeID       string            `json:"node_id,omitempty"`
	MetricName   string            `json:"metric_name,omitempty"`
	Value        float64           `json:"value"`
	Labels       map[string]string `json:"labels,omitempty"`
}

type SnapshotOutput struct {
	CollectedAt time.Time      `json:"collected_at"`
	Duration    string         `json:"duration"`
	Instances   int            `json:"instances"`
	Errors      map[string]int `json:"errors"`
	Samples     []SampleOutput `json:"samples"`
}

type CapacityOutput struct {
	SKU            string  `json:"sku"`
	MaxConnections int     `json:"max_connections"`
	MaxStorageGB   float64 `json:"max_storage_gb"`
}

type CapacitySummary struct {
	Capacity []CapacityOutput `json:"capacity"`
	Warnings []string         `json:"warnings,omitempty"`
}

func writeSnapshot(w io.Writer, format string, snap *snapshot.Snapshot) error {
	switch format {
	case "prometheus":
		return snapshot.WriteText(w, snap)
	case "json":
		out := SnapshotOutput{
			CollectedAt: snap.CollectedAt,
			Duration:    snap.Duration.String(),
			Instances:   snap.Instances,
			Errors:      snap.Diagnostics(),
			Samples:     []SampleOutput{},
		}
		for _, s := range snap.Samples() {
			out.Samples = append(out.Samples, SampleOutput{
				Family: s.Family, Account: s.Account, InstanceID: s.InstanceID, InstanceDesc: s.InstanceDesc,
				NodeID: s.NodeID, MetricName: s.MetricName, Value: s.Value, Labels: s.Meta,
			})
		}
		return writeJSON(w, out)
	default:
		var rows [][]string
		for _, s := range snap.Samples() {
			if s.IsMeta() {
				continue
			}
			rows = append(rows, []string{
				s.Account, s.InstanceID, s.InstanceDesc, s.NodeID, s.Family, s.MetricName,
				strconv.FormatFloat(s.Value, 'g', 6, 64),
			})
		}
		printTable(w, []string{"Account", "Instance", "Description", "Node", "Family", "Metric", "Value"}, rows)
		return nil
	}
}

func writeCapacity(w io.Writer, format string, table config.CapacityTable, warnings []string) error {
	skus := table.SKUs()

	if format == "json" {
		summary := CapacitySummary{Warnings: warnings}
		for _, sku := range skus {
			c, _ := table.Lookup(sku)
			summary.Capacity = append(summary.Capacity, CapacityOutput{
				SKU: sku, MaxConnections: c.MaxConnections, MaxStorageGB: c.MaxStorageGB,
			})
		}
		return writeJSON(w, summary)
	}

	flagged := make(map[string]bool, len(warnings))
	for _, warning := range warnings {
		sku, _, _ := strings.Cut(warning, " ")
		flagged[sku] = true
	}

	rows := make([][]string, 0, len(skus))
	for _, sku := range skus {
		c, _ := table.Lookup(sku)
		storage := "-"
		if c.MaxStorageGB > 0 {
			storage = strconv.FormatFloat(c.MaxStorageGB, 'f', -1, 64)
		}
		check := "OK"
		if flagged[sku] {
			check = "CHECK"
		}
		rows = append(rows, []string{sku, strconv.Itoa(c.MaxConnections), storage, check})
	}

	printTable(w, []string{"SKU", "Max Connections", "Max Storage GB", "Status"}, rows)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	jsonOutput, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonOutput))
	return err
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)
	printSeparator(w, widths)
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, data []string, widths []int) {
	row := "| "
	for i, cell := range data {
		if i < len(widths) {
			row += fmt.Sprintf("%-*s | ", widths[i], cell)
		}
	}
	fmt.Fprintln(w, row)
}

func printSeparator(w io.Writer, widths []int) {
	row := "|-"
	for _, width := range widths {
		row += strings.Repeat("-", width) + "-|-"
	}
	fmt.Fprintln(w, row)
}
