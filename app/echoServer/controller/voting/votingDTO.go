package voting

type StartReq struct {
	Title string `json:"title" validate:"max=200"`
}

type ProposeReq struct {
	ISBN string `json:"isbn" validate:"required,notblank"`
}

// VoteReq is also the body of winner-to-reading.
type VoteReq struct {
	ProposalID int64 `json:"proposal_id" validate:"required,gt=0"`
}
