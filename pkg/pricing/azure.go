package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// Azure Retail Prices API
const azurePricingAPI = "https://prices.azure.com/api/retail/prices"

const (
	azureCPUCostPerCoreHour   = 0.048
	azureMemoryCostPerGiBHour = 0.0059
)

// azureShapes maps common AKS node SKUs to (vCPU, GiB) so a VM hourly
// price can be split into per-core and per-GiB rates.
var azureShapes = map[string][2]float64{
	"Standard_B2s":     {2, 4},
	"Standard_B4ms":    {4, 16},
	"Standard_D2s_v3":  {2, 8},
	"Standard_D4s_v3":  {4, 16},
	"Standard_D8s_v3":  {8, 32},
	"Standard_D2s_v5":  {2, 8},
	"Standard_D4s_v5":  {4, 16},
	"Standard_E4s_v5":  {4, 32},
	"Standard_F4s_v2":  {4, 8},
	"Standard_DS2_v2":  {2, 7},
	"Standard_D16s_v5": {16, 64},
}

// AzureProvider implements Azure AKS pricing
type AzureProvider struct {
	region     string
	baseURL    string
	cache      *Cache[*models.CostInfo]
	httpClient *http.Client
}

type azurePriceResponse struct {
	Items []azurePriceItem `json:"Items"`
}

type azurePriceItem struct {
	CurrencyCode  string  `json:"currencyCode"`
	RetailPrice   float64 `json:"retailPrice"`
	UnitOfMeasure string  `json:"unitOfMeasure"`
	ServiceName   string  `json:"serviceName"`
	ProductName   string  `json:"productName"`
	SkuName       string  `json:"skuName"`
	ArmSkuName    string  `json:"armSkuName"`
	ArmRegionName string  `json:"armRegionName"`
}

func NewAzureProvider(region string) *AzureProvider {
	return &AzureProvider{
		region:  region,
		baseURL: azurePricingAPI,
		cache:   NewCache[*models.CostInfo](24 * time.Hour),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (a *AzureProvider) Name() string {
	return "azure"
}

// GetCostInfo prices a node SKU from the retail API. Unknown SKUs, API
// failures and empty answers fall back to standard rates.
func (a *AzureProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	if region == "" {
		region = a.region
	}

	cacheKey := fmt.Sprintf("azure-%s-%s", region, nodeType)
	if cached, ok := a.cache.Get(cacheKey); ok {
		return cached, nil
	}

	shape, known := azureShapes[nodeType]
	if !known {
		return a.defaultCostInfo(region, nodeType), nil
	}

	costInfo, err := a.fetchAzurePricing(ctx, region, nodeType, shape)
	if err != nil {
		slog.Warn("azure retail pricing unavailable, using defaults",
			slog.String("region", region), slog.String("sku", nodeType), slog.String("error", err.Error()))
		return a.defaultCostInfo(region, nodeType), nil
	}

	a.cache.Set(cacheKey, costInfo)
	return costInfo, nil
}

func (a *AzureProvider) fetchAzurePricing(ctx context.Context, region, nodeType string, shape [2]float64) (*models.CostInfo, error) {
	filter := fmt.Sprintf("serviceName eq 'Virtual Machines' and armRegionName eq '%s' and armSkuName eq '%s' and priceType eq 'Consumption'", region, nodeType)
	u := a.baseURL + "?$filter=" + url.QueryEscape(filter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure pricing API returned status %d", resp.StatusCode)
	}

	var priceResp azurePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return nil, fmt.Errorf("failed to decode azure pricing response: %w", err)
	}

	hourly, currency, ok := linuxOnDemandPrice(priceResp.Items)
	if !ok {
		return nil, fmt.Errorf("no on-demand linux price for %s in %s", nodeType, region)
	}

	// Split the VM price keeping the standard CPU:memory price ratio.
	k := azureMemoryCostPerGiBHour / azureCPUCostPerCoreHour
	perCore := hourly / (shape[0] + shape[1]*k)

	return &models.CostInfo{
		Provider:             "azure",
		Region:               region,
		NodeType:             nodeType,
		CPUCostPerCoreHour:   perCore,
		MemoryCostPerGiBHour: perCore * k,
		Currency:             currency,
		LastUpdated:          time.Now(),
	}, nil
}

// linuxOnDemandPrice picks the cheapest hourly price that is not spot,
// low priority or Windows.
func linuxOnDemandPrice(items []azurePriceItem) (float64, string, bool) {
	var best float64
	var currency string
	found := false
	for _, item := range items {
		if item.UnitOfMeasure != "1 Hour" || item.RetailPrice <= 0 {
			continue
		}
		name := strings.ToLower(item.SkuName + " " + item.ProductName)
		if strings.Contains(name, "spot") || strings.Contains(name, "low priority") || strings.Contains(name, "windows") {
			continue
		}
		if !found || item.RetailPrice < best {
			best, currency, found = item.RetailPrice, item.CurrencyCode, true
		}
	}
	return best, currency, found
}

func (a *AzureProvider) defaultCostInfo(region, nodeType string) *models.CostInfo {
	return &models.CostInfo{
		Provider:             "azure",
		Region:               region,
		NodeType:             nodeType,
		CPUCostPerCoreHour:   azureCPUCostPerCoreHour,
		MemoryCostPerGiBHour: azureMemoryCostPerGiBHour,
		Currency:             "USD",
		LastUpdated:          time.Now(),
	}
}
