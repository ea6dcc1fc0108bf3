package config

import (
	"fmt"

	"github.com/vadiminshakov/fundwatch/internal/domain"
)

const (
	CategoryOverseas = "overseas"
	CategoryDomestic = "domestic"

	disclosureURL = "https://timefolioetf.co.kr/m11_view.php?idx=%d"
)

type catalogueEntry struct {
	idx      int
	name     string
	category string
}

var catalogue = []catalogueEntry{
	{22, "TIMEFOLIO Global Top Pick Active", CategoryOverseas},
	{9, "TIMEFOLIO Global Bio Active", CategoryOverseas},
	{20, "TIMEFOLIO Global Space Tech & Defense Active", CategoryOverseas},
	{5, "TIMEFOLIO US S&P500 Active", CategoryOverseas},
	{2, "TIMEFOLIO US Nasdaq100 Active", CategoryOverseas},
	{6, "TIMEFOLIO Global AI Active", CategoryOverseas},
	{19, "TIMEFOLIO China AI Tech Active", CategoryOverseas},
	{18, "TIMEFOLIO US Dividend Dow Jones Active", CategoryOverseas},
	{10, "TIMEFOLIO US Nasdaq100 Bond Mixed 50 Active", CategoryOverseas},
	{8, "TIMEFOLIO Global Consumer Trend Active", CategoryOverseas},
	{16, "TIMEFOLIO K Renewable Energy Active", CategoryDomestic},
	{13, "TIMEFOLIO K Bio Active", CategoryDomestic},
	{12, "TIMEFOLIO Korea Plus Dividend Active", CategoryDomestic},
	{11, "TIMEFOLIO KOSPI Active", CategoryDomestic},
	{15, "TIMEFOLIO Korea Value-up Active", CategoryDomestic},
	{17, "TIMEFOLIO K Innovation Active", CategoryDomestic},
	{1, "TIMEFOLIO K Culture Active", CategoryDomestic},
}

// DefaultFunds is the built-in catalogue of TIMEFOLIO active ETFs.
// Fund ids are "tf-<idx>" after the disclosure page index.
func DefaultFunds() []domain.Fund {
	funds := make([]domain.Fund, 0, len(catalogue))
	for _, e := range catalogue {
		funds = append(funds, domain.Fund{
			ID:       fmt.Sprintf("tf-%d", e.idx),
			Name:     e.name,
			Category: e.category,
			URL:      fmt.Sprintf(disclosureURL, e.idx),
		})
	}
	return funds
}
