package service

import (
	"errors"
	"fmt"

	"shopwallet/internal/config"
	"shopwallet/internal/model"
	"shopwallet/pkg/idgen"
)

var (
	ErrNoShippingRate    = errors.New("未配置该国家/运送方式的费率")
	ErrUnknownShipMethod = errors.New("未知的运送方式")
	ErrInvalidWeight     = errors.New("重量必须大于0")
	ErrInvalidBoxCount   = errors.New("箱数必须大于0")
)

// RateTable 国际运费费率表
// 正式环境由外部费率服务提供，本地默认实现从配置文件加载静态表
type RateTable interface {
	IntlFee(country, method string, weightGram int64) (int64, error)
	DomesticFee(method string) (int64, error)
}

// ConfigRateTable 基于 yaml 配置的费率表实现
type ConfigRateTable struct {
	cfg *config.ShippingConfig
}

func NewConfigRateTable(cfg *config.ShippingConfig) *ConfigRateTable {
	return &ConfigRateTable{cfg: cfg}
}

// IntlFee 按 国家+运送方式+重量区间 查表
// 首重 base_gram 内收 fee_twd，超出部分每足一公斤加收 per_kilo（不足一公斤舍去）
func (t *ConfigRateTable) IntlFee(country, method string, weightGram int64) (int64, error) {
	for _, rate := range t.cfg.Intl {
		if rate.Country != country || rate.Method != method {
			continue
		}
		if rate.MaxGram > 0 && weightGram > rate.MaxGram {
			continue
		}

		fee := rate.FeeTWD
		if weightGram > rate.BaseGram && rate.PerKilo > 0 {
			extraKilo := (weightGram - rate.BaseGram) / 1000 // 向下取整
			fee += extraKilo * rate.PerKilo
		}
		return fee, nil
	}
	return 0, fmt.Errorf("%w: country=%s method=%s", ErrNoShippingRate, country, method)
}

func (t *ConfigRateTable) DomesticFee(method string) (int64, error) {
	for _, rate := range t.cfg.Domestic {
		if rate.Method == method {
			return rate.FeeTWD, nil
		}
	}
	return 0, fmt.Errorf("%w: method=%s", ErrNoShippingRate, method)
}

// ============================================================================
// 运费计算
// ============================================================================

// ShippingQuote 单条明细的运费拆分
// Fee = 国际段 + 国内段 + 单箱包装费 × 箱数；门市自取全免，改发取货码
type ShippingQuote struct {
	IntlFee     int64  `json:"shipping_fee_intl"`
	DomesticFee int64  `json:"shipping_fee_domestic"`
	BoxFeeTotal int64  `json:"box_fee_total"`
	PickupCode  string `json:"member_shipping_code,omitempty"`
}

func (q *ShippingQuote) Total() int64 {
	return q.IntlFee + q.DomesticFee + q.BoxFeeTotal
}

// ShippingCalculator 按明细计算运费
// 只算钱不动钱：运费差额由会员线下补缴后，运营把 shipping_paid 置位
type ShippingCalculator struct {
	rates RateTable
}

func NewShippingCalculator(rates RateTable) *ShippingCalculator {
	return &ShippingCalculator{rates: rates}
}

// Quote 计算一条明细的运费
// 调用前提：明细已到集运点（实重可知），由 FulfillmentService 把关
func (c *ShippingCalculator) Quote(item *model.OrderItem) (*ShippingQuote, error) {
	// 门市自取：不装箱、不计运费，发放取货码供门市核销
	if item.ShippingMethod == model.ShippingMethodWholesaleStore {
		quote := &ShippingQuote{PickupCode: item.MemberShippingCode}
		if quote.PickupCode == "" {
			quote.PickupCode = idgen.GeneratePickupCode()
		}
		return quote, nil
	}

	if !model.NeedsBoxFee(item.ShippingMethod) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShipMethod, item.ShippingMethod)
	}
	if item.WeightGram <= 0 {
		return nil, ErrInvalidWeight
	}
	if item.BoxCount <= 0 {
		return nil, ErrInvalidBoxCount
	}

	intl, err := c.rates.IntlFee(item.ShippingCountry, item.ShippingMethod, item.WeightGram)
	if err != nil {
		return nil, err
	}

	dom, err := c.rates.DomesticFee(item.ShippingMethod)
	if err != nil {
		return nil, err
	}

	return &ShippingQuote{
		IntlFee:     intl,
		DomesticFee: dom,
		BoxFeeTotal: item.BoxFee * int64(item.BoxCount),
	}, nil
}
