package schema

// Default returns the registry of the feedback-insights product.
//
// The graph is cyclic (product -> research -> researchStep -> research ->
// product, painPoint <-> idea, ...). Links keep these collections symmetric:
//
//	product.companyId      -> company.products
//	research.productId     -> product.researches
//	researchStep.researchId-> research.researchSteps
//	painPoint.productId    -> product.painPoints
//	idea.painPointId       -> painPoint.ideas
//	comment.painPointId    -> painPoint.comments
//	comment.productIdeaId  -> idea.comments
func Default() *Registry {
	return MustRegistry(
		Define(User, map[string]Relation{
			"memberships": Many(Membership),
		}),
		Define(Company, map[string]Relation{
			"products":     Many(Product),
			"memberships":  Many(Membership),
			"integrations": Many(Integration),
		}),
		Define(Membership, map[string]Relation{
			"user":    One(User),
			"company": One(Company),
		},
			Link{Relation: "user", Target: User},
			Link{Relation: "company", Target: Company},
		),
		Define(Integration, map[string]Relation{
			"company": One(Company),
		},
			Link{Relation: "company", Target: Company},
		),
		Define(Product, map[string]Relation{
			"company":    One(Company),
			"researches": Many(Research),
			"painPoints": Many(PainPoint),
			"sources":    Many(Source),
		},
			Link{Relation: "company", Target: Company},
		),
		Define(Research, map[string]Relation{
			"product":       One(Product),
			"researchSteps": Many(ResearchStep),
		},
			Link{Relation: "product", Target: Product},
		),
		Define(ResearchStep, map[string]Relation{
			"research": One(Research),
		},
			Link{Relation: "research", Target: Research},
		),
		Define(PainPoint, map[string]Relation{
			"product":  One(Product),
			"ideas":    Many(Idea),
			"comments": Many(Comment),
			"sources":  Many(Source),
			"features": Many(Feature),
		},
			Link{Relation: "product", Target: Product},
		),
		Define(Idea, map[string]Relation{
			"painPoint":  One(PainPoint),
			"painPoints": Many(PainPoint),
			"comments":   Many(Comment),
			"sources":    Many(Source),
		},
			Link{Relation: "painPoint", Target: PainPoint},
		),
		Define(Comment, map[string]Relation{
			"author":    One(User),
			"painPoint": One(PainPoint),
			"idea":      One(Idea),
		},
			Link{Relation: "painPoint", Target: PainPoint},
			Link{Relation: "idea", Target: Idea, ForeignKey: "productIdeaId"},
		),
		Define(Source, map[string]Relation{
			"product": One(Product),
		}),
		Define(Feature, map[string]Relation{
			"painPoint": One(PainPoint),
		},
			Link{Relation: "painPoint", Target: PainPoint},
		),
	)
}
