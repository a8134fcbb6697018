// Package validation はリクエストDTOの入力検証を提供する。
// go-playground/validator にdecimal.Decimal向けの検証タグを追加して使う。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
)

// Validator は構造体タグに基づいて入力を検証する。
type Validator struct {
	validate *validator.Validate
}

// New はValidatorを生成する。
// フィールド名はjsonタグの名前で報告する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// decimal.Decimalは文字列として検証タグに渡す
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "dgte", decimalCompare(func(d, p decimal.Decimal) bool { return d.GreaterThanOrEqual(p) }))
	mustRegister(v, "dgt", decimalCompare(func(d, p decimal.Decimal) bool { return d.GreaterThan(p) }))
	mustRegister(v, "dlte", decimalCompare(func(d, p decimal.Decimal) bool { return d.LessThanOrEqual(p) }))
	mustRegister(v, "dscale", validateScale)

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register validation %q: %v", tag, err))
	}
}

// Struct はsを検証する。検証エラーは VALIDATION_FAILED の*model.APIErrorとして返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describe(fe))
	}
	return model.NewValidationError(strings.Join(details, ", "))
}

// describe は検証エラー1件を利用者向けの文章にする。
func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", field)
	case "max":
		return fmt.Sprintf("%s は%s文字以内で入力してください", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s は%s文字以上で入力してください", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s はメールアドレスの形式で入力してください", field)
	case "uuid":
		return fmt.Sprintf("%s の形式が正しくありません", field)
	case "dgte":
		return fmt.Sprintf("%s は%s以上で入力してください", field, fe.Param())
	case "dgt":
		return fmt.Sprintf("%s は%sより大きい値を入力してください", field, fe.Param())
	case "dlte":
		return fmt.Sprintf("%s は%s以下で入力してください", field, fe.Param())
	case "dscale":
		return fmt.Sprintf("%s は小数点以下%s桁までで入力してください", field, fe.Param())
	}
	return fmt.Sprintf("%s が不正です (%s)", field, fe.Tag())
}

// decimalCompare はパラメータとの大小比較を行う検証関数を返す。
func decimalCompare(cmp func(d, param decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, ok := fieldDecimal(fl)
		if !ok {
			return false
		}
		param, err := decimal.NewFromString(fl.Param())
		if err != nil {
			panic(fmt.Sprintf("invalid decimal parameter %q: %v", fl.Param(), err))
		}
		return cmp(d, param)
	}
}

func validateScale(fl validator.FieldLevel) bool {
	d, ok := fieldDecimal(fl)
	if !ok {
		return false
	}
	var places int32
	if _, err := fmt.Sscanf(fl.Param(), "%d", &places); err != nil {
		panic(fmt.Sprintf("invalid dscale parameter %q", fl.Param()))
	}
	return d.Equal(d.Truncate(places))
}

func fieldDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
