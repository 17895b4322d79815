package domain

import "errors"

var ErrPackageNotFound = errors.New("package not found")
var ErrPackageNotPurchasable = errors.New("package is not purchasable")

type PackageType string

const (
	PackageCombo    PackageType = "COMBO"
	PackageCall     PackageType = "CALL"
	PackageInternet PackageType = "INTERNET"
	PackageSocial   PackageType = "SOCIAL"
)

// Package is a subscription package a customer can buy with their account balance.
type Package struct {
	ID          int64
	Name        string
	Type        PackageType
	Duration    int64
	Purchasable bool
}
