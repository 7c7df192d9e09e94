package neural

// MSELoss is the mean squared error loss over the output activation.
type MSELoss struct {
	Act Activation
}

// Loss returns the squared error of one output.
func (l MSELoss) Loss(yTrue, yPred float32) float32 {
	d := yPred - yTrue
	return d * d
}

// Prime returns yPred - yTrue, half the derivative of Loss with respect to
// the prediction.
func (l MSELoss) Prime(yTrue, yPred float32) float32 {
	return yPred - yTrue
}

// Delta returns the output-layer error term for a neuron with pre-activation
// z and activation a.
func (l MSELoss) Delta(yTrue, z, a float32) float32 {
	return l.Prime(yTrue, a) * l.Act.Prime(z)
}
