package dto

// ListResultsQuery represents the filter of a node results request
type ListResultsQuery struct {
	ResultType string `form:"result_type" json:"result_type" validate:"omitempty,oneof=commissioning testing installation"`
}

// ResultDataQuery represents the stream selection of a result data request
type ResultDataQuery struct {
	DataType string `form:"data_type" json:"data_type" validate:"omitempty,oneof=combined stdout stderr result"`
}
