package domain

import (
	"strings"
	"time"
)

// Party is a consignor, consignee or bill-to counterparty.
type Party struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	GST     string `json:"gst,omitempty"`
}

// PackageLine is one goods line on a consignment note.
type PackageLine struct {
	Count           string `json:"count,omitempty"`
	Method          string `json:"method,omitempty"`
	ActualWeightKgs string `json:"actualWeightKgs,omitempty"`
	Rate            string `json:"rate,omitempty"`
	Total           string `json:"total,omitempty"`
	Km              string `json:"km,omitempty"`
	PrivateMark     string `json:"privateMark,omitempty"`
	Charges         string `json:"charges,omitempty"`
	GoodsContent    string `json:"goodsContent,omitempty"`
}

// PackageLines is the number of goods lines a consignment note carries.
const PackageLines = 4

// ShipmentFields holds the free-form shipment data of a draft or permanent
// record. All values are optional while the record is a draft.
type ShipmentFields struct {
	Branch         string `json:"branch,omitempty"`
	BranchCode     string `json:"branchCode,omitempty"`
	GcDate         string `json:"gcDate,omitempty"`
	TruckNumber    string `json:"truckNumber,omitempty"`
	VehicleNumber  string `json:"vehicleNumber,omitempty"`
	TruckType      string `json:"truckType,omitempty"`
	BrokerName     string `json:"brokerName,omitempty"`
	TruckFrom      string `json:"truckFrom,omitempty"`
	TruckTo        string `json:"truckTo,omitempty"`
	PaymentDetails string `json:"paymentDetails,omitempty"`
	DeliveryDate   string `json:"deliveryDate,omitempty"`
	EBillDate      string `json:"eBillDate,omitempty"`
	EBillExpDate   string `json:"eBillExpDate,omitempty"`
	DriverName     string `json:"driverName,omitempty"`
	DriverPhone    string `json:"driverPhone,omitempty"`
	PoNumber       string `json:"poNumber,omitempty"`
	TripID         string `json:"tripId,omitempty"`

	Consignor Party `json:"consignor,omitempty"`
	Consignee Party `json:"consignee,omitempty"`
	BillTo    Party `json:"billTo,omitempty"`

	CustInvNo string `json:"custInvNo,omitempty"`
	InvValue  string `json:"invValue,omitempty"`
	EInv      string `json:"eInv,omitempty"`
	EInvDate  string `json:"eInvDate,omitempty"`
	Eda       string `json:"eda,omitempty"`

	Packages [PackageLines]PackageLine `json:"packages,omitempty"`

	DeliveryFromSpecial string `json:"deliveryFromSpecial,omitempty"`
	DeliveryAddress     string `json:"deliveryAddress,omitempty"`
	ServiceTax          string `json:"serviceTax,omitempty"`
	ReceiptBillNo       string `json:"receiptBillNo,omitempty"`
	ReceiptBillAmount   string `json:"receiptBillAmount,omitempty"`
	ReceiptBillDate     string `json:"receiptBillDate,omitempty"`
	ChallanBillDate     string `json:"challanBillDate,omitempty"`
	ChallanBillAmount   string `json:"challanBillAmount,omitempty"`
	TotalRate           string `json:"totalRate,omitempty"`
	TotalWeight         string `json:"totalWeight,omitempty"`
	HireAmount          string `json:"hireAmount,omitempty"`
	AdvanceAmount       string `json:"advanceAmount,omitempty"`
	BalanceAmount       string `json:"balanceAmount,omitempty"`
	FreightCharge       string `json:"freightCharge,omitempty"`
}

// fields lists every scalar field in a fixed order. Merge walks three of
// these lists in lockstep, so the order must not depend on the receiver.
func (f *ShipmentFields) fields() []*string {
	out := []*string{
		&f.Branch, &f.BranchCode, &f.GcDate, &f.TruckNumber, &f.VehicleNumber,
		&f.TruckType, &f.BrokerName, &f.TruckFrom, &f.TruckTo, &f.PaymentDetails,
		&f.DeliveryDate, &f.EBillDate, &f.EBillExpDate, &f.DriverName, &f.DriverPhone,
		&f.PoNumber, &f.TripID,
		&f.Consignor.Name, &f.Consignor.Address, &f.Consignor.GST,
		&f.Consignee.Name, &f.Consignee.Address, &f.Consignee.GST,
		&f.BillTo.Name, &f.BillTo.Address, &f.BillTo.GST,
		&f.CustInvNo, &f.InvValue, &f.EInv, &f.EInvDate, &f.Eda,
		&f.DeliveryFromSpecial, &f.DeliveryAddress, &f.ServiceTax,
		&f.ReceiptBillNo, &f.ReceiptBillAmount, &f.ReceiptBillDate,
		&f.ChallanBillDate, &f.ChallanBillAmount,
		&f.TotalRate, &f.TotalWeight, &f.HireAmount, &f.AdvanceAmount,
		&f.BalanceAmount, &f.FreightCharge,
	}
	for i := range f.Packages {
		p := &f.Packages[i]
		out = append(out,
			&p.Count, &p.Method, &p.ActualWeightKgs, &p.Rate, &p.Total,
			&p.Km, &p.PrivateMark, &p.Charges, &p.GoodsContent,
		)
	}
	return out
}

// MergeShipmentFields builds the finalized field set of a permanent record.
// For every field the first non-blank value wins, in the order override,
// draft, default.
func MergeShipmentFields(override, draft, def ShipmentFields) ShipmentFields {
	var out ShipmentFields
	o, d, f, dst := override.fields(), draft.fields(), def.fields(), out.fields()
	for i := range dst {
		*dst[i] = firstNonBlank(*o[i], *d[i], *f[i])
	}
	return out
}

// ConversionDefaults returns the lowest-precedence values used when neither
// the caller nor the draft supplied a field.
func ConversionDefaults(override, draft ShipmentFields, convertedAt time.Time) ShipmentFields {
	return ShipmentFields{
		GcDate:        convertedAt.Format("2006-01-02"),
		VehicleNumber: firstNonBlank(override.TruckNumber, draft.TruckNumber),
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
