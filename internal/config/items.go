package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/restock-monitor/internal/models"
)

// Items is an ordered, read-only list of monitored pages.
type Items struct {
	list []models.Item
}

// NewItems copies list so later changes by the caller do not leak in.
func NewItems(list []models.Item) Items {
	return Items{list: append([]models.Item(nil), list...)}
}

func (i Items) Len() int { return len(i.list) }

// All returns a copy of the items in configured order.
func (i Items) All() []models.Item {
	return append([]models.Item(nil), i.list...)
}

func (i Items) Validate() error {
	if len(i.list) == 0 {
		return ErrNoItems
	}

	var problems []string
	for n, item := range i.list {
		for _, p := range item.Validate() {
			problems = append(problems, fmt.Sprintf("item %d: %s", n+1, p))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid items: %s", strings.Join(problems, "; "))
	}
	return nil
}

type itemsFile struct {
	Items []models.Item `yaml:"items"`
}

// LoadItems reads the item list from a YAML file of the form
//
//	items:
//	  - url: https://shop.example/p/1
//	    marker: "cart_button soldout"
//	    absence_text: SOLD OUT
//
// An empty path selects DefaultItems.
func LoadItems(path string) (Items, error) {
	if path == "" {
		return DefaultItems(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Items{}, fmt.Errorf("failed to read items file: %w", err)
	}

	var f itemsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Items{}, fmt.Errorf("failed to parse items file %s: %w", path, err)
	}

	items := NewItems(f.Items)
	if err := items.Validate(); err != nil {
		return Items{}, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// DefaultItems is the built-in watch list of Japanese retailers.
func DefaultItems() Items {
	return NewItems([]models.Item{
		{Name: "pc-koubou", URL: "https://www.pc-koubou.jp/products/detail.php?product_id=1107785", Marker: "btn-ggreen fs14 pl25 pr25 sold-out", AbsenceText: "受付終了"},
		{Name: "ark", URL: "https://www.ark-pc.co.jp/i/10240267/", Marker: "stat-panel-101", AbsenceText: "在庫なし"},
		{Name: "dospara", URL: "https://www.dospara.co.jp/SBR1299/IC516296.html", Marker: "tx-delivery-date-class-disp_elm p-product-show-detail__delivery-label--blue", AbsenceText: "在庫なし"},
		{Name: "tsukumo", URL: "https://shop.tsukumo.co.jp/goods/0730143315289/", Marker: "stock-status limited", AbsenceText: "在庫なし"},
		{Name: "ocworks", URL: "https://ocworks.com/products/amd-ryzen7-9800x3d-box", Marker: "product-form__add-button button button--disabled", AbsenceText: "品切れ中"},
		{Name: "biccamera", URL: "https://www.biccamera.com/bc/item/13640117/", Marker: "bcs_red", AbsenceText: "この商品は在庫がなくなりました。"},
		{Name: "applied", URL: "https://shop.applied-net.co.jp/shopdetail/000000434726/", Marker: "nostockBtn", AbsenceText: "品切れ"},
		{Name: "qd-store", URL: "https://www.qd-store.jp/c-item-detail?ic=0730143315289", Marker: "cart_button soldout", AbsenceText: "SOLD OUT"},
		{Name: "suruga-ya", URL: "https://www.suruga-ya.jp/product/detail/145273281", Marker: "mgnB5 out-of-stock-text", AbsenceText: "申し訳ございません。品切れ中です。"},
		{Name: "sofmap", URL: "https://www.sofmap.com/product_detail.aspx?sku=101358000", Marker: "ic stock closed", AbsenceText: "在庫切れ"},
		{Name: "kojima", URL: "https://www.kojima.net/ec/prod_detail.html?prod=0730143315289", Marker: "deliv opt-large", AbsenceText: "ネット在庫完売"},
		{Name: "joshin", URL: "https://joshinweb.jp/srhzs.html?KEYWORD=&KEY=ZS_ALL&KEY_M=ALL&QS=&QK=Ryzen+7+9800x3d&category_id=&REQUEST_CODE=1", Marker: "soldout", AbsenceText: "完売いたしました"},
	})
}
